// cmd/main.go is the application entry point.
// It exposes the HTTP server, the migration runner and the notification
// worker as cobra subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/config"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/database"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/notify"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/server"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "club-rides",
		Short:        "Club ride registration API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(notifyWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// ── 1. Wire up layers ────────────────────────────────────────
			router, cleanup, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			// ── 2. Start server with graceful shutdown ───────────────────
			srv := &http.Server{
				Addr:         fmt.Sprintf(":%s", cfg.Port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("✓ Server listening on http://localhost:%s", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			// Block until SIGINT, SIGTERM or a listener failure.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				return fmt.Errorf("server error: %w", err)
			}

			log.Println("shutting down server…")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
			log.Println("server stopped")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			dbCfg := cfg.Database()
			if !dbCfg.Configured() {
				return errors.New("migrate: DATABASE_URL or DB_HOST must be set")
			}
			pool, err := database.NewPool(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := database.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			log.Println("✓ Migrations applied")
			return nil
		},
	}
}

func notifyWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-worker",
		Short: "Deliver queued promotion emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.RabbitMQURL == "" {
				return errors.New("notify-worker: RABBITMQ_URL must be set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := server.OpenPool(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			w := notify.NewWorker(cfg.RabbitMQURL, cfg.NotifyQueue, server.PromotionMailer(cfg, pool), log.Default())
			log.Printf("✓ Consuming promotions from queue %s", cfg.NotifyQueue)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Println("worker stopped")
			return nil
		},
	}
}
