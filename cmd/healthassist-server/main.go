package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthassist/healthassist/internal/config"
	"github.com/healthassist/healthassist/internal/domain/identity"
	"github.com/healthassist/healthassist/internal/domain/scheduling"
	"github.com/healthassist/healthassist/internal/platform/auth"
	"github.com/healthassist/healthassist/internal/platform/db"
	"github.com/healthassist/healthassist/internal/platform/httpx"
	"github.com/healthassist/healthassist/internal/platform/middleware"
	"github.com/healthassist/healthassist/internal/platform/notification"
	"github.com/healthassist/healthassist/internal/platform/ocr"
	"github.com/healthassist/healthassist/internal/platform/storage"
)

const (
	jsonBodyLimit   = 1 << 20
	shutdownTimeout = 10 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthassist-server",
		Short: "HealthAssist API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
				count, err := db.NewMigrator(pool, dir).Up(ctx, cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, dir).Status(ctx, cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(os.Stdout, cfg.DBSchema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load hospitals, specializations, doctors and their weekly schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("doctors")
			if n <= 0 {
				return fmt.Errorf("--doctors must be positive")
			}
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				res, err := scheduling.Seed(ctx, scheduling.NewDoctorRepo(pool), txFunc(pool), scheduling.DefaultCatalog(n))
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d specializations, %d hospitals, %d doctors, %d schedules.\n",
					res.Specializations, res.Hospitals, res.Doctors, res.Schedules)
				return nil
			})
		},
	}
	cmd.Flags().Int("doctors", 20, "Number of doctors to create")
	return cmd
}

func withPool(ctx context.Context, fn func(context.Context, *config.Config, *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func txFunc(pool *pgxpool.Pool) scheduling.TxFunc {
	return func(ctx context.Context, fn func(context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
}

// newLogger writes human-readable output in development and JSON otherwise.
func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(os.Stdout, cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a, err := newApp(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer a.close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	a.scheduling.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

// app is the wired HTTP server and the long-lived pieces that need closing.
type app struct {
	echo        *echo.Echo
	scheduling  *scheduling.Service
	revocations *auth.TokenRevocationStore
}

func (a *app) close() {
	a.revocations.Close()
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	store, err := objectStore(cfg)
	if err != nil {
		return nil, err
	}

	// Repositories
	users := identity.NewUserRepo(pool)
	lookup := identity.UserLookup{Users: users}

	// Tokens
	revocations := auth.NewTokenRevocationStore(time.Minute)
	tokens := auth.NewTokenService(auth.NewPGTokenStore(pool), lookup, auth.TokenConfig{
		Secret:     []byte(cfg.JWTAccessSecret),
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
	}, auth.WithRevocationStore(revocations))

	// Services
	identitySvc := identity.NewService(users, tokens, logger)
	schedulingSvc := scheduling.NewService(
		scheduling.NewDoctorRepo(pool),
		scheduling.NewAppointmentRepo(pool),
		notifier(cfg, lookup, logger),
		logger,
		scheduling.WithTx(txFunc(pool)),
	)
	storageSvc := storage.NewService(store, storage.NewFileRepo(pool), cfg.UploadMaxBytes, logger)
	relay := ocr.NewRelay(ocr.Config{
		WebhookURL: cfg.OCRWebhookURL,
		Secret:     cfg.OCRWebhookSecret,
		Timeout:    cfg.OCRTimeout,
	}, storageSvc, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	httpx.Configure(e, logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders:    []string{auth.TokenExpiredHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(jsonBodyLimit, cfg.UploadMaxBytes, storage.UploadPath))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, map[string]time.Duration{
		ocr.ScanPath: cfg.OCRTimeout + cfg.RequestTimeout,
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(auth.Middleware(tokens, auth.AuthSkipper))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return httpx.Respond(c, http.StatusOK, "ok", map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, logger))

	// Routes
	identity.NewHandler(identitySvc, cfg.JWTRefreshTTL, cfg.CookieSecure).
		RegisterRoutes(e, middleware.RateLimit(middleware.PerMinute(cfg.AuthRateLimitPerMin)))
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(e)
	storage.NewHandler(storageSvc).RegisterRoutes(e)
	ocr.NewHandler(relay).RegisterRoutes(e)

	return &app{echo: e, scheduling: schedulingSvc, revocations: revocations}, nil
}

// objectStore picks S3 when a bucket is configured and memory otherwise.
func objectStore(cfg *config.Config) (storage.ObjectStore, error) {
	if !cfg.StorageEnabled() {
		return storage.NewMemoryStore("local"), nil
	}
	return storage.NewS3Store(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	})
}

func notifier(cfg *config.Config, recipients notification.RecipientResolver, logger zerolog.Logger) notification.Notifier {
	if !cfg.MailEnabled() {
		logger.Warn().Msg("SMTP not configured, appointment emails disabled")
		return notification.Nop{}
	}
	sender := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	return notification.NewEmailNotifier(sender, recipients, notification.NewTemplateEngine(), logger)
}
