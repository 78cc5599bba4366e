package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quote-pricing/api"
	"quote-pricing/core/audit"
	"quote-pricing/core/calc"
	"quote-pricing/core/model"
	"quote-pricing/core/quote"
	"quote-pricing/db"
	"quote-pricing/internal/config"
	"quote-pricing/internal/logging"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the calculation HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging())
			if err != nil {
				return err
			}
			defer log.Sync()

			conn, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(conn); err != nil {
				return err
			}

			store := db.NewStore(conn, log)
			calculator := calc.New(store, log)

			var pricer quote.LinePricer = &quote.LocalPricer{Calc: calculator}
			if cfg.FanOut {
				pricer = quote.NewRemotePricer(cfg.BaseCalculationEndpoint, cfg.Namespace,
					cfg.RequestTimeout, log)
				log.Info("remote line dispatch enabled",
					zap.String("endpoint", cfg.BaseCalculationEndpoint))
			}
			orchestrator := quote.New(store, pricer, log, cfg.MaxParallelLines)

			auditLog := buildAuditLogger(cfg, log)
			defer auditLog.Close()

			server := api.New(model.NewRegistry(), orchestrator, calculator, auditLog, log, cfg.Namespace)
			httpServer := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", zap.String("addr", cfg.ListenAddr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

// buildAuditLogger picks the audit sink from configuration: disabled,
// queue-backed, or the application log.
func buildAuditLogger(cfg config.Config, log *zap.Logger) audit.Logger {
	if cfg.DisableLogging {
		return audit.Nop{}
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return audit.NewQueueLogger(client, cfg.RedisQueue, log)
	}
	return audit.NewZapLogger(log)
}
