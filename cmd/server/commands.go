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

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/cache"
	"github.com/emilythestrangee/devoverflow/backend/internal/config"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/logger"
	"github.com/emilythestrangee/devoverflow/backend/internal/metrics"
	"github.com/emilythestrangee/devoverflow/backend/internal/middleware"
	"github.com/emilythestrangee/devoverflow/backend/internal/server"
)

var (
	rootCmd = &cobra.Command{
		Use:           "devoverflow",
		Short:         "Vote, interaction and reputation ledger for the DevOverflow Q&A site",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				return err
			}
			if _, err := logger.Init(c.Env, c.LogLevel); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			cfg = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates tables and indexes for the configured store",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manages users",
	}
	userAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Registers a user and prints a bearer token for it",
		Long:  `Creates a user with zero reputation and prints a signed token the API accepts as that user's identity. Meant for development; sign-in itself lives outside this service.`,
		Args:  cobra.NoArgs,
		RunE:  runUserAdd,
	}

	cfg          *config.Config
	userName     string
	userUsername string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)

	userAddCmd.Flags().StringVar(&userUsername, "username", "", "Unique username (required)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.Flags().DurationVar(&tokenTTL, "token-ttl", 72*time.Hour, "Lifetime of the printed token")
	_ = userAddCmd.MarkFlagRequired("username")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	if err := b.migrate(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc := ledger.NewService(b.store, metrics.NewLedgerMetrics(registry), cfg.TxMaxRetries)

	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rdb, err := cache.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = rdb
		zap.L().Info("✅ Redis connected, vote rate limiting enabled",
			zap.Int("limit", cfg.VoteRateLimit),
			zap.Duration("window", cfg.VoteRateWindow),
		)
	} else {
		zap.L().Warn("REDIS_ADDR not set, vote rate limiting disabled")
	}

	srv := server.NewServer(cfg, svc, limiter, registry)
	done := runGracefulShutdown(srv)

	zap.L().Info("📝 Press Ctrl+C to stop the server", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	zap.L().Info("Server stopped")
	return nil
}

func runGracefulShutdown(srv *http.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		zap.L().Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
		close(done)
	}()

	return done
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	return b.migrate(ctx)
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	svc := ledger.NewService(b.store, nil, cfg.TxMaxRetries)
	user, err := svc.CreateUser(ctx, userUsername, userName)
	if err != nil {
		return err
	}

	token, err := middleware.SignToken(cfg.JWTSecret, user.ID, user.Username, jwt.MapClaims{
		"exp": time.Now().Add(tokenTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", user.ID)
	fmt.Fprintf(out, "username: %s\n", user.Username)
	fmt.Fprintf(out, "token:    %s\n", token)
	return nil
}
