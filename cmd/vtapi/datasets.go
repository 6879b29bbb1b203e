package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	datasetLocation    string
	datasetFriendly    string
	datasetDescription string

	datasetsCmd = &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "Manage datasets",
	}

	datasetsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tLOCATION\tFRIENDLY NAME\tDESCRIPTION")
			ds := s.api.LoadDatasets("")
			for {
				ok, err := ds.Next(ctx)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ds.Name(), ds.Location(), ds.FriendlyName(), ds.Description())
			}
			return tw.Flush()
		},
	}

	datasetsCreateCmd = &cobra.Command{
		Use:   "create <name>",
		Short: "Create a dataset and its schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.api.CreateDataset(cmd.Context(), args[0], datasetLocation, datasetFriendly, datasetDescription); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created dataset %s\n", args[0])
			return nil
		},
	}

	datasetsDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a dataset and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.api.DeleteDataset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted dataset %s\n", args[0])
			return nil
		},
	}

	datasetsTruncateCmd = &cobra.Command{
		Use:   "truncate <name>",
		Short: "Remove the sequences, tasks and outputs of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			return s.api.TruncateDataset(cmd.Context(), args[0])
		},
	}
)

func init() {
	datasetsCmd.AddCommand(datasetsListCmd, datasetsCreateCmd, datasetsDeleteCmd, datasetsTruncateCmd)

	datasetsCreateCmd.Flags().StringVar(&datasetLocation, "location", "", "data folder relative to datasets_dir (default: the name)")
	datasetsCreateCmd.Flags().StringVar(&datasetFriendly, "friendly", "", "display name")
	datasetsCreateCmd.Flags().StringVar(&datasetDescription, "description", "", "free text description")
}
