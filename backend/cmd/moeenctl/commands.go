package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/internal/repository"
	"github.com/alamriomar/moeen/backend/internal/service"
	"github.com/alamriomar/moeen/backend/pkg/database"
	"github.com/alamriomar/moeen/backend/pkg/jwt"
	applogger "github.com/alamriomar/moeen/backend/pkg/logger"
)

// cliEnv 子命令共享的配置与日志
type cliEnv struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func (e *cliEnv) load() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	e.cfg, e.logger = cfg, logger
	return nil
}

func (e *cliEnv) openDB() (*gorm.DB, error) {
	if e.cfg.Tracker.Storage != "postgres" {
		return nil, fmt.Errorf("当前 tracker.storage=%s，该命令仅支持 postgres", e.cfg.Tracker.Storage)
	}
	return database.NewDB(&e.cfg.Database, e.cfg.Log.Level, e.logger)
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}

	root := &cobra.Command{
		Use:           "moeenctl",
		Short:         "Administrative tool for the attendance continuity tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load()
		},
	}
	root.PersistentFlags().StringVarP(&env.configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(newMigrateCmd(env))
	root.AddCommand(newTokenCmd(env))
	root.AddCommand(newExportCmd(env))
	return root
}

// --- migrate ---

func newMigrateCmd(env *cliEnv) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database schema migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.openDB()
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return database.RunMigrations(sqlDB, env.logger)
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the given number of migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps 必须大于 0")
			}
			db, err := env.openDB()
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return database.RollbackMigrations(sqlDB, steps, env.logger)
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}

// --- token ---

func newTokenCmd(env *cliEnv) *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a lecturer",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := jwt.NewManager(&env.cfg.Auth).GenerateAccessToken(owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "lecturer id written into the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.access_token_ttl)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// --- export ---

func newExportCmd(env *cliEnv) *cobra.Command {
	var owner, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a lecturer's weekly status workbook to disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.openDB()
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			svc := service.NewService(env.cfg, repository.NewRepository(db),
				service.NewLocalLocker(env.cfg.Tracker.LockWait), env.logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			buf, filename, err := svc.Export.ExportContinuity(ctx, owner)
			if err != nil {
				return err
			}
			if out == "" {
				out = filename
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("写入文件失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已导出 %s (%d bytes)\n", out, buf.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "lecturer id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to the generated file name)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
