package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/almamatch/almamatch/internal/api"
	"github.com/almamatch/almamatch/internal/logger"
	"github.com/almamatch/almamatch/internal/recommend"
	"github.com/almamatch/almamatch/internal/scheduler"
	"github.com/almamatch/almamatch/internal/secrets"
	"github.com/almamatch/almamatch/internal/store"
	"github.com/almamatch/almamatch/internal/suggest"
	"github.com/almamatch/almamatch/internal/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultListen = ":8080"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the matching and recommendation API server",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", defaultListen, "address for the HTTP API")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting almamatch", zap.String("version", version))

	if config.DatabaseURL == "" {
		logger.Fatal(
			"database url is required",
			zap.String("hint", "set DATABASE_URL environment variable or the 'database-url' key in the configuration file"),
		)
	}

	pool, err := store.NewPostgresPool(ctx, config.DatabaseURL)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	var plans *store.PlanCache
	if config.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		defer rdb.Close()

		plans = store.NewPlanCache(rdb, time.Duration(config.PlanCacheTTL)*time.Second, logger)
		logger.Info("plan tier cache enabled", zap.Int("ttl_seconds", config.PlanCacheTTL))
	}

	st := store.New(pool, plans, logger)

	sched := scheduler.New(st, config.RefreshMinutes, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("starting scheduler", zap.Error(err))
	}
	defer sched.Stop()

	handlers := api.NewHandlers(
		recommend.NewEngine(st, logger),
		suggest.NewEngine(st, logger),
		st,
		resolveAPIToken(config, logger),
		logger,
	)

	srv := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("http api listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.String("reason", "signal received"))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", zap.Error(err))
		}

		// Give in-flight scheduler runs a moment before the pool closes.
		_ = utils.WaitFor(shutdownCtx, time.Second)
	}
}

// resolveAPIToken loads the institution sourcing token. Without one the
// sourcing endpoint stays disabled, which is the safe default.
func resolveAPIToken(config *Config, logger *zap.Logger) string {
	if config.APITokenFile == "" {
		logger.Warn("sourcing api token not configured, suggestions endpoint disabled",
			zap.String("hint", "set ALMAMATCH_API_TOKEN_FILE or the 'api-token-file' key in the configuration file"),
		)
		return ""
	}

	token, err := secrets.Load(secrets.Source{
		Name: "sourcing api token",
		File: config.APITokenFile,
	})
	if err != nil {
		logger.Warn("loading sourcing api token, suggestions endpoint disabled", zap.Error(err))
		return ""
	}
	return token
}
