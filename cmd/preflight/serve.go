package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/internal/presentation/tui"
	httpAdapter "github.com/aretw0/preflight/pkg/adapters/http"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the audit, pack administration and evaluation routes over HTTP:
GET /audit, GET /audit/pack, GET|POST /packs, GET /packs/{id}/validate,
POST /packs/{id}/activate, POST /packs/{id}/eval, POST /packs/rollback,
POST /evaluate, GET /metrics and GET /healthz.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		levelName, _ := cmd.Flags().GetString("log-level")
		level, _ := logging.ParseLevel(levelName)
		logger := logging.New(level)

		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           httpAdapter.NewHandler(eng, httpAdapter.WithLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			if tui.IsTerminal(os.Stdout) {
				tui.PrintBanner(os.Stdout, preflight.Version)
			}
			fmt.Printf("Listening on %s, config %s\n", srv.Addr, eng.ConfigPath())
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			fmt.Printf("\nShutting down (%v)\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
