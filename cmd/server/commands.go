package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/database"
	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
)

var (
	opUsername  string
	opEmail     string
	opPassword  string
	activityLog string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer database.Close(db)
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info("schema up to date")
			return nil
		},
	}

	createOperatorCmd = &cobra.Command{
		Use:   "create-operator",
		Short: "Create a platform operator login",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer database.Close(db)
			if err := database.Migrate(db); err != nil {
				return err
			}
			svc, err := newServices(cfg, db, log)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			u, err := svc.Directory.CreateOperator(ctx, opUsername, opEmail, opPassword)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "operator %s created (id %d)\n", u.Username, u.ID)
			return nil
		},
	}

	consumeCmd = &cobra.Command{
		Use:   "consume",
		Short: "Record activity events from the broker into a rotating log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			lc := cfg.Log
			lc.Output = "file"
			lc.Format = "json"
			lc.FilePath = activityLog
			log, err := logger.New(lc)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log.Info("activity consumer starting", zap.String("queue", cfg.Events.Queue))
			err = queue.StartActivityConsumer(ctx, cfg.Events.URL, cfg.Events.Queue, log)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
)

func init() {
	createOperatorCmd.Flags().StringVar(&opUsername, "username", "", "operator login name")
	createOperatorCmd.Flags().StringVar(&opEmail, "email", "", "operator email")
	createOperatorCmd.Flags().StringVar(&opPassword, "password", "", "operator password")
	_ = createOperatorCmd.MarkFlagRequired("username")
	_ = createOperatorCmd.MarkFlagRequired("email")
	_ = createOperatorCmd.MarkFlagRequired("password")

	consumeCmd.Flags().StringVar(&activityLog, "log-file", "logs/activity.log", "activity log destination")
}
