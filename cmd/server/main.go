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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/database"
	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/router"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
	"github.com/iliyamo/dispatch-backoffice/internal/storage"
)

var (
	autoMigrate bool

	rootCmd = &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch back office API server",
		Long:  `Multi-tenant back office for trucking companies: fleet, loads, documents and subscriptions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&autoMigrate, "migrate", true, "apply schema migrations before serving")
	rootCmd.AddCommand(serveCmd, migrateCmd, createOperatorCmd, consumeCmd)
}

// bootstrap loads configuration and opens the logger and the database.
func bootstrap() (config.Config, *zap.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("logger: %w", err)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return cfg, log, nil, fmt.Errorf("database: %w", err)
	}
	return cfg, log, db, nil
}

func newServices(cfg config.Config, db *gorm.DB, log *zap.Logger) (*service.Services, error) {
	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}
	store, err := storage.NewLocal(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	var events service.EventPublisher = service.NopPublisher{}
	if cfg.Events.Enabled {
		events = service.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue)
	}
	return service.New(db, service.Options{
		Plans:        plans,
		Events:       events,
		Store:        store,
		Log:          log,
		ApprovalDays: cfg.ApprovalDays,
		BcryptCost:   cfg.BcryptCost,
	}), nil
}

func serve() error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer database.Close(db)

	if autoMigrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	svc, err := newServices(cfg, db, log)
	if err != nil {
		return err
	}

	rdb, err := config.NewRedisClient(context.Background(), config.LoadRedisConfig())
	if err != nil {
		log.Warn("rate limiting and response cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	e := router.New(router.Deps{
		Cfg:       cfg,
		DB:        db,
		Svc:       svc,
		Log:       log,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DB.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
