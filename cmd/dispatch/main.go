package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postdispatch/configs"
	"github.com/maheshrc27/postdispatch/internal/app"
	"github.com/maheshrc27/postdispatch/internal/queue"
	"github.com/maheshrc27/postdispatch/internal/repository"
	"github.com/maheshrc27/postdispatch/pkg/logger"
	"github.com/maheshrc27/postdispatch/pkg/utils"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatch",
		Short:         "Publish due posts to their platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	root.AddCommand(newRunCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var postID int64
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch every due post once and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger.Setup(cfg.LogLevel, cfg.LogFile)
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, *cfg)
			if err != nil {
				slog.Error("setup failed", "error", err)
				return err
			}
			defer a.Close()

			run := a.Dispatcher.Run
			if postID != 0 {
				run = func(ctx context.Context) (*queue.Summary, error) { return a.Dispatcher.RunPost(ctx, postID) }
			}
			summary, err := run(ctx)
			if err != nil {
				slog.Error("dispatch failed", "error", err)
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().Int64Var(&postID, "post", 0, "dispatch only this post")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger.Setup(cfg.LogLevel, cfg.LogFile)
			defer logger.Close()

			db, err := app.OpenDB(cmd.Context(), cfg.PostgresURI)
			if err != nil {
				slog.Error("setup failed", "error", err)
				return err
			}
			defer db.Close()

			if err := repository.EnsureSchema(cmd.Context(), db); err != nil {
				slog.Error("migration failed", "error", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

// newTokenCmd mints the bearer tokens the HTTP API accepts.
func newTokenCmd() *cobra.Command {
	var (
		workspace int64
		scope     string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if len(cfg.SecretKey) != 32 {
				return &config.ConfigError{Missing: []string{"SECRET_KEY (32 bytes)"}}
			}
			token, err := utils.GenerateToken(cfg.SecretKey, strconv.FormatInt(workspace, 10), scope, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&workspace, "workspace", 0, "workspace the token acts for")
	cmd.Flags().StringVar(&scope, "scope", utils.ScopeDispatch, "token scope, empty for a session token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
