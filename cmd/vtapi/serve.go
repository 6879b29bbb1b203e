package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/vtapi/internal/server"
)

var (
	listenAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP read API",
		Long:  `Start the HTTP read API. The listen address comes from --listen, then server.listen in the config file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			addr := s.cfg.Server.Listen
			if listenAddr != "" {
				addr = listenAddr
			}
			return server.New(s.api, s.log).ListenAndServe(ctx, addr)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "address to listen on (e.g. :8080)")
}
