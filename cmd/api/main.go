package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"uspguard.org/internal/auth"
	"uspguard.org/internal/catalog"
	"uspguard.org/internal/compliance"
	"uspguard.org/internal/config"
	"uspguard.org/internal/demo"
	"uspguard.org/internal/httpapi"
	"uspguard.org/internal/obs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "uspguard-api",
		Short: "USP 795/797/800 compliance API",
	}
	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP (and optional gRPC health) server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", obs.Version, obs.Commit)
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := obs.NewLogger(os.Stdout, cfg.LogLevel, cfg.IsDev())
	obs.SetLogger(logger)

	// Инициализация observability
	obs.Init()
	obs.InitBuildInfo(obs.Version, obs.Commit)

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}
	if cfg.AuthSecret == "" {
		logger.Warn().Msg("AUTH_SECRET not set; tokens are signed with a random key and will not survive a restart")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var db *sql.DB
	if cfg.CatalogDSN != "" {
		db, err = sql.Open("pgx", cfg.CatalogDSN)
		if err != nil {
			return fmt.Errorf("open catalog db: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	cat, source, err := loadCatalog(ctx, cfg, db)
	if err != nil {
		return err
	}

	engine := compliance.NewInMemory()
	res, err := catalog.Apply(ctx, engine, cat)
	if err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	logger.Info().
		Str("source", source).
		Int("chapters", res.Chapters).
		Int("requirements", res.Requirements).
		Msg("catalog loaded")

	if cfg.DemoData {
		counts, err := demo.NewGenerator(cfg.DemoSeed).Populate(ctx, engine, cfg.DemoPharmacies)
		if err != nil {
			return fmt.Errorf("demo data: %w", err)
		}
		logger.Info().
			Strs("pharmacies", cfg.DemoPharmacies).
			Int("records", counts.Total()).
			Msg("demo data generated")
	}

	if err := ensureBootstrapAdmin(ctx, engine, cfg.BootstrapAdmin); err != nil {
		return err
	}

	prometheus.MustRegister(obs.NewComplianceCollector(engine))

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, obs.Version, engine, httpapi.Options{
		AuthEnabled:  cfg.AuthEnabled,
		Signer:       signer,
		BootstrapKey: cfg.BootstrapKey,
		RateBurst:    cfg.RateLimitBurst,
		RatePerSec:   cfg.RateLimitRPS,
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", obs.Version).Bool("auth", cfg.AuthEnabled).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listen: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(probe, obs.Version).Register(grpcSrv)
		go func() {
			logger.Info().Str("addr", cfg.GRPCAddr).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed")
	}
	obs.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info().Msg("stopped")
	return runErr
}

func newSigner(cfg *config.Config) (*auth.Signer, error) {
	if cfg.AuthSecret != "" {
		return auth.NewSigner([]byte(cfg.AuthSecret))
	}
	return auth.NewRandomSigner()
}

// ensureBootstrapAdmin creates the named admin user unless it exists, so a
// fresh engine has someone to issue the first token for.
func ensureBootstrapAdmin(ctx context.Context, engine compliance.Service, username string) error {
	if username == "" {
		return nil
	}
	_, err := engine.CreateUser(ctx, compliance.NewUser{
		Username: username,
		FullName: "Bootstrap Administrator",
		Role:     auth.RoleAdmin,
	})
	switch {
	case err == nil:
		obs.Logger().Info().Str("username", username).Msg("bootstrap admin created")
	case errors.Is(err, compliance.ErrConflict):
		u, err := engine.GetUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u.Role != auth.RoleAdmin {
			return fmt.Errorf("bootstrap admin %q exists with role %q", username, u.Role)
		}
	default:
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}

// loadCatalog picks the catalog source: database, then file, then the embedded default.
func loadCatalog(ctx context.Context, cfg *config.Config, db *sql.DB) (*catalog.Catalog, string, error) {
	switch {
	case db != nil:
		cat, err := catalog.LoadSQL(ctx, db)
		if err != nil {
			return nil, "", fmt.Errorf("load catalog from db: %w", err)
		}
		return cat, "postgres", nil
	case cfg.CatalogFile != "":
		cat, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, "", err
		}
		return cat, cfg.CatalogFile, nil
	default:
		cat, err := catalog.Default()
		if err != nil {
			return nil, "", err
		}
		return cat, "embedded", nil
	}
}
