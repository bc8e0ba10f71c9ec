package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/healthassist/healthassist/internal/domain/identity"
	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/db"
)

// connStr points at the shared container, started once in TestMain. Every
// test gets its own schema on top of it.
var connStr string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stderr, "skipping integration tests in short mode")
		os.Exit(0)
	}

	ctx := context.Background()
	container, url, err := setupPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}
	connStr = url

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "terminate container: %v\n", err)
	}
	os.Exit(code)
}

func setupPostgresContainer(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("healthassist"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("connection string: %w", err)
	}
	return container, url, nil
}

// migrationsDir locates the migrations directory relative to this file.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// newSchema migrates a fresh schema and returns a pool bound to it. The
// schema is dropped when the test ends.
func newSchema(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	schema := "t_" + strings.ReplaceAll(uuid.NewString()[:13], "-", "")

	pool, err := db.NewPool(ctx, connStr, schema, 20, 1)
	require.NoError(t, err)

	n, err := db.NewMigrator(pool, migrationsDir()).Up(ctx, schema)
	require.NoError(t, err)
	require.Positive(t, n)

	t.Cleanup(func() {
		if _, err := pool.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		pool.Close()
	})
	return pool
}

// tx adapts db.WithTx to the function shape services accept.
func tx(pool *pgxpool.Pool) func(ctx context.Context, fn func(ctx context.Context) error) error {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
}

// createUser registers a user through the identity service so the password
// hash and uniqueness rules are the real ones.
func createUser(t *testing.T, pool *pgxpool.Pool, email string) *identity.User {
	t.Helper()
	users := identity.NewUserRepo(pool)
	tokens := auth.NewTokenService(auth.NewPGTokenStore(pool), identity.UserLookup{Users: users}, testTokenConfig)
	svc := identity.NewService(users, tokens, zerolog.Nop())

	u, err := svc.Register(context.Background(), email, "", "s3cret-pass")
	require.NoError(t, err)
	return u
}

var testTokenConfig = auth.TokenConfig{
	Secret:     []byte("integration-secret-0123456789abcdef"),
	AccessTTL:  15 * time.Minute,
	RefreshTTL: 7 * 24 * time.Hour,
}
