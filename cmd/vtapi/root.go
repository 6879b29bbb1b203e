package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/vtapi/internal/config"
	"github.com/koustreak/vtapi/internal/logger"
	"github.com/koustreak/vtapi/internal/vtapi"
)

// Version is set via ldflags: -ldflags="-X main.Version=v1.2.0"
var Version = "dev"

var (
	configFile string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:          "vtapi",
		Short:        "Video analytics metadata store",
		Long:         `vtapi stores datasets, sequences, methods, tasks, processes and their interval outputs in PostgreSQL, MySQL or SQLite.`,
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the vtapi version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "vtapi", Version)
		},
	}
)

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// session is an open VTApi plus what must be released with it.
type session struct {
	api *vtapi.VTApi
	cfg *config.Config
	log *logger.Logger
	out io.Closer
}

func (s *session) Close() {
	_ = s.api.Close()
	_ = s.out.Close()
}

// open loads the config named by the global flags and connects.
func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	log, out, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	api, err := vtapi.New(ctx, cfg, log)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	return &session{api: api, cfg: cfg, log: log, out: out}, nil
}
