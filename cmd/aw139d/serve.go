package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logger.ContextWithLogger(ctx, log)

			app, err := application.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv, err := server.New(app, server.WithLogger(log))
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port, overriding the config")
	return cmd
}
