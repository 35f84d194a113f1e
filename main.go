package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"docuchain/config"
	"docuchain/config/database"
	"docuchain/internal/chain"
	"docuchain/internal/contentstore"
	"docuchain/internal/ratelimit"
	"docuchain/pkg/logger"
	"docuchain/router"
	"docuchain/socket"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "docuchain",
		Short:         "Document registry backed by on-chain upload and share transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Sync()
		os.Exit(1)
	}
}

// bootstrap loads configuration, starts the logger and connects to Postgres.
func bootstrap(ctx context.Context) (config.Config, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	logger.Init(cfg.LogLevel)

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, db, nil
}

func newServeCmd() *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrateFirst)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", true, "apply pending schema migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrateFirst bool) error {
	cfg, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	defer logger.Sync()
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	if migrateFirst {
		if err := database.MigrateUp(db); err != nil {
			return err
		}
	}

	ledger, err := chain.DialEthLedger(ctx, cfg.RPCURL, cfg.ChainID, cfg.TxCacheTTL)
	if err != nil {
		return err
	}
	defer ledger.Close()
	logger.Sugar.Infof("Connected to ledger (chain %d), registry contract %s", cfg.ChainID, cfg.ContractAddress)

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		logger.Sugar.Info("REDIS_ADDR not set, using in-process rate limiter")
		limiter = ratelimit.NewMemoryLimiter(nil, 0)
	}

	content := contentstore.NewPinata(contentstore.PinataConfig{
		APIURL:     cfg.PinataAPIURL,
		APIKey:     cfg.PinataAPIKey,
		SecretKey:  cfg.PinataSecretKey,
		GatewayURL: cfg.IPFSGatewayURL,
	})

	// The hub's event loop runs until shutdown closes every subscriber.
	hub := socket.NewHub()
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.Setup(cfg, db, hub, ledger, limiter, content),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("Docuchain backend listening on %s", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.MigrateUp(db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be a number: %w", err)
				}
				steps = n
			}
			_, db, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.MigrateDown(db, steps)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			version, dirty, err := database.SchemaVersion(db)
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}
