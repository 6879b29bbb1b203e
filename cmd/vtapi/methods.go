package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	methodsCmd = &cobra.Command{
		Use:   "methods",
		Short: "Inspect analysis methods",
	}

	methodsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List methods and their parameter keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKEYS\tDESCRIPTION")
			m := s.api.LoadMethods("")
			for {
				ok, err := m.Next(ctx)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				keys, err := m.MethodKeyDefs(ctx)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(keys))
				for _, k := range keys {
					names = append(names, k.Name+":"+k.Type)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Name(), strings.Join(names, ","), m.Description())
			}
			return tw.Flush()
		},
	}
)

func init() {
	methodsCmd.AddCommand(methodsListCmd)
}
