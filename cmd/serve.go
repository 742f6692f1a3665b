package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/daeunpk/wink/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts an HTTP API that runs turns against the active session.

  POST /api/turns            JSON {"korean_text": "..."} or multipart with korean_text and image
  GET  /api/session          the active session
  POST /api/session/archive  archive the active session
  GET  /healthcheck`,
		Example: `  # Start server on the configured port (default 8888)
  wink serve

  # Start server on custom port
  wink serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if port == "" {
				port = a.cfg.Server.Port
			}
			handler := handlers.New(a.pipeline, a.sessions, a.cfg.Server.UploadsDir, a.cfg.Server.MaxUploadMB)

			// Set up routes
			mux := http.NewServeMux()
			mux.HandleFunc("/api/turns", handler.HandleTurns)
			mux.HandleFunc("/api/session", handler.HandleSession)
			mux.HandleFunc("/api/session/archive", handler.HandleArchive)
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + port
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Wink API available", "addr", addr, "url", "http://localhost"+addr, "session", a.pipeline.SessionName())
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

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default: server.port)")

	return cmd
}
