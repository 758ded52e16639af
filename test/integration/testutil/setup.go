//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/habitquest/platform/internal/app"
	"github.com/habitquest/platform/internal/auth"
	"github.com/habitquest/platform/internal/catalog"
	"github.com/habitquest/platform/internal/guard"
	"github.com/habitquest/platform/internal/infra"
	"github.com/habitquest/platform/internal/progression"
	"github.com/habitquest/platform/internal/projection"
	"github.com/habitquest/platform/internal/repository"
	"github.com/habitquest/platform/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret = "integration-test-secret"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "habitquest"
	TestDBPass    = "habitquest"
	TestDBName    = "habitquest_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	JWTMgr   *auth.JWTManager
	Registry *progression.Registry
	Hub      *infra.NotificationHub
	Logger   *slog.Logger
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "habitquest")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}

	return nil
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

func getSharedPool(t *testing.T, logger *slog.Logger) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		migrations := filepath.Join(findProjectRoot(), "db", "migrations")
		if err := infra.RunMigrations(testDSN(), migrations, logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router and the Postgres progress store.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	env := &TestEnv{
		Pool:   getSharedPool(t, logger),
		JWTMgr: auth.NewJWTManager(TestJWTSecret, 24*time.Hour, time.Hour),
		Logger: logger,
		t:      t,
	}

	// Clean before test to ensure isolation
	env.CleanAll()
	env.start()

	t.Cleanup(func() {
		env.stop()
		env.CleanAll()
	})
	return env
}

// Restart drops every in-memory engine and serves from a fresh registry over
// the same database, as a redeploy would.
func (env *TestEnv) Restart() {
	env.t.Helper()
	env.stop()
	env.start()
}

func (env *TestEnv) start() {
	store := service.NewPgProgressStore(env.Pool, repository.NewPgProgressRepository(), repository.NewOutboxRepository())
	env.Hub = infra.NewNotificationHub(nil, env.Logger)
	env.Registry = progression.NewRegistry(catalog.Default(), store, progression.Options{
		Notifier: env.Hub,
		Logger:   env.Logger,
	})

	svc := service.NewProgressService(env.Registry, service.ProgressServiceConfig{
		Projections: projection.NewInMemoryStore(),
		Limiter:     guard.NewRateLimiter(1000, time.Minute),
		Dedupe:      guard.NewIdempotencyGuard(time.Hour),
		Logger:      env.Logger,
	})

	router := app.NewRouter(app.RouterDeps{
		Progress:    svc,
		Hub:         env.Hub,
		JWTMgr:      env.JWTMgr,
		Logger:      env.Logger,
		Health:      map[string]infra.Pinger{"postgres": env.Pool},
		CORSOrigins: "*",
	})
	env.Server = httptest.NewServer(router)
}

func (env *TestEnv) stop() {
	env.Hub.Shutdown()
	env.Server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := env.Registry.Close(ctx); err != nil {
		env.t.Errorf("flush registry: %v", err)
	}
}
