package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/handlers"
	"github.com/lehigh-university-libraries/tourguide/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the tour guide interface",
		Long: `Starts the Tourguide web interface on the specified port.

The web interface lets you upload a landmark photo, shows the identified
landmark with its history, and plays the narration when one is available.`,
		Example: `  # Start server on default port 8888
  tourguide serve

  # Start server on custom port with a config file
  tourguide serve --port 3000 --config tourguide.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			orchestrator, err := pipeline.NewFromConfig(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			handler := handlers.New(orchestrator, cfg.MaxUploadBytes)

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Tourguide interface available",
					"addr", addr,
					"url", "http://localhost"+addr,
					"vision_provider", cfg.VisionProvider,
					"speech_provider", cfg.SpeechProvider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")

	return cmd
}
