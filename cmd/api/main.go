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

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/router"
	settingrepo "github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant"
	tenantrepo "github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/tenant/repo"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/web"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

// ensureTables runs every bootstrap DDL in order and reports all failures.
func ensureTables(ctx context.Context, ensurers ...tableEnsurer) error {
	var result *multierror.Error
	for _, e := range ensurers {
		if err := e.EnsureTable(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func listenAddr() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	return "0.0.0.0:" + port
}

func main() {
	// best-effort: real environment wins when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-tenant-go-stdlib")

	if err := run(sugar); err != nil {
		sugar.Fatalw("service stopped", "err", err)
	}
	sugar.Info("goodbye")
}

func run(sugar *zap.SugaredLogger) error {
	tokens, err := auth.NewTokenService(auth.ConfigFromEnv())
	if err != nil {
		return err
	}

	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "postgres")
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tenants := tenantrepo.NewTenantRepo(db)
	if err := ensureTables(ctx, tenants, settingrepo.NewRepo(db)); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}

	tenantCfg := tenant.ConfigFromEnv()
	tenantSvc := tenant.NewService(
		tenants,
		tenant.BcryptHasher{Cost: bcrypt.DefaultCost},
		tenant.NewLinkSender(tenantCfg, sugar),
		tenantCfg,
		sugar,
	)
	if err := tenantSvc.EnsureAdmin(ctx); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	handler := router.RegisterRoutes(sugar, router.ConfigFromEnv(), router.Deps{
		DB:      db,
		Tokens:  tokens,
		Tenants: tenantSvc,
		Static:  web.Static(),
	})
	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
