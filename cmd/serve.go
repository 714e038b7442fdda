/*
Copyright © 2023 sanix-darker <s4nixd@gmail.com>
*/

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sanix-darker/hgping/internal/web"
)

func init() {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification debugging web UI.",
		Long: `Serve a small web form that classifies a single changeset from the
target repository and shows the telemetry payload that would be sent for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.ListenAddr
			}

			srv := &http.Server{
				Addr:         addr,
				Handler:      web.NewServer(newPinger(), cfg.TargetRepo).Handler(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 60 * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("web UI listening")
				errc <- srv.ListenAndServe()
			}()

			select {
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
