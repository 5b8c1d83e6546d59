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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/carepath/portal/internal/config"
	"github.com/carepath/portal/internal/domain/identity"
	"github.com/carepath/portal/internal/domain/profile"
	"github.com/carepath/portal/internal/domain/triage"
	"github.com/carepath/portal/internal/domain/visit"
	"github.com/carepath/portal/internal/platform/auth"
	"github.com/carepath/portal/internal/platform/blobstore"
	"github.com/carepath/portal/internal/platform/db"
	"github.com/carepath/portal/internal/platform/middleware"
	"github.com/carepath/portal/internal/platform/notification"
	"github.com/carepath/portal/internal/platform/telemetry"
	"github.com/carepath/portal/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Patient portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.Files))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	sender, closer, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up email delivery")
	}
	if closer != nil {
		defer closer.Close()
	}
	logger.Info().Str("driver", cfg.NotifyDriver).Msg("email delivery ready")

	archive, err := newArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up summary archive")
	}

	metrics := telemetry.NewMetrics()
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
	dispatcher := notification.NewDispatcher(sender, notification.NewTemplateEngine(),
		cfg.CollaboratorTimeout, cfg.OTPTTL, logger)

	profileSvc := profile.NewService(profile.NewProfileRepoPG(pool), profile.NewChangeRepoPG(pool),
		cfg.CollaboratorTimeout, logger)
	identitySvc := identity.NewService(identity.NewAccountRepoPG(pool), identity.NewCodeRepoPG(pool),
		profileSvc, dispatcher, auth.NewIssuer(jwtCfg, cfg.PendingSessionTTL, cfg.SessionTTL),
		identity.Options{CodeTTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts, Timeout: cfg.CollaboratorTimeout},
		logger)
	engine := visit.NewEngine(profileSvc, visit.NewLedgerPG(pool), archive, dispatcher,
		visit.NewMemorySessionStore(), metrics,
		visit.EngineConfig{TreatmentDelay: cfg.TreatmentDelay, Timeout: cfg.CollaboratorTimeout},
		logger)

	e := newRouter(&app{
		cfg:      cfg,
		logger:   logger,
		jwt:      jwtCfg,
		metrics:  metrics,
		health:   db.HealthHandler(pool),
		identity: identity.NewHandler(identitySvc),
		profile:  profile.NewHandler(profileSvc),
		visit:    visit.NewHandler(engine),
		triage:   triage.NewHandler(),
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// app holds everything newRouter mounts.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	jwt      auth.JWTConfig
	metrics  *telemetry.Metrics
	health   echo.HandlerFunc
	identity *identity.Handler
	profile  *profile.Handler
	visit    *visit.Handler
	triage   *triage.Handler
}

// requestTimeout leaves room for the treatment pause plus a profile call
// and a collaborator call on either side of it.
func requestTimeout(cfg *config.Config) time.Duration {
	return cfg.TreatmentDelay + 2*cfg.CollaboratorTimeout + 5*time.Second
}

func newRouter(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if a.cfg.MetricsEnabled {
		e.Use(a.metrics.Middleware())
		e.GET("/metrics", a.metrics.Handler())
	}
	e.GET("/health", a.health)

	api := e.Group("/api/v1", middleware.BodyLimit("1M"), middleware.RequestTimeout(requestTimeout(a.cfg)))

	limit := middleware.DefaultRateLimitConfig()
	if a.cfg.AuthRateLimitRPS > 0 {
		limit.RequestsPerSecond = a.cfg.AuthRateLimitRPS
	}
	if a.cfg.AuthRateLimitBurst > 0 {
		limit.BurstSize = a.cfg.AuthRateLimitBurst
	}
	a.identity.RegisterRoutes(api.Group("/auth", middleware.RateLimit(limit)), auth.JWTMiddleware(a.jwt))

	a.triage.RegisterRoutes(api)

	verified := api.Group("", auth.JWTMiddleware(a.jwt), auth.RequireVerified())
	a.profile.RegisterRoutes(verified)
	a.visit.RegisterRoutes(verified)

	return e
}

// queueURLResolver is the part of the SQS client used to look up the queue.
type queueURLResolver interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, opts ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

func queueURL(ctx context.Context, client queueURLResolver, name string) (string, error) {
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &name})
	if err != nil {
		return "", fmt.Errorf("get SQS queue URL for %q: %w", name, err)
	}
	if resp.QueueUrl == nil {
		return "", fmt.Errorf("SQS returned no URL for queue %q", name)
	}
	return *resp.QueueUrl, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS SDK config: %w", err)
	}
	return cfg, nil
}

// newEmailSender builds the sender for NOTIFY_DRIVER. The returned closer is
// non-nil when the sender holds connections that must be released.
func newEmailSender(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, io.Closer, error) {
	switch cfg.NotifyDriver {
	case "sqs":
		awsCfg, err := loadAWSConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		client := sqs.New(sqs.Options{
			Region:       awsCfg.Region,
			Credentials:  awsCfg.Credentials,
			HTTPClient:   awsCfg.HTTPClient,
			BaseEndpoint: awsCfg.BaseEndpoint,
		})
		url, err := queueURL(ctx, client, cfg.SQSQueueName)
		if err != nil {
			return nil, nil, err
		}
		return notification.NewSQSSender(client, url), nil, nil
	case "kafka":
		writer := newKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		return notification.NewKafkaSender(writer), writer, nil
	case "log":
		return notification.NewLogSender(logger), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown notify driver %q", cfg.NotifyDriver)
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
}

// newArchive returns the S3 store for ARCHIVE_BUCKET, or an in-memory store
// when no bucket is configured.
func newArchive(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.BlobStore, error) {
	if cfg.ArchiveBucket == "" {
		logger.Warn().Msg("ARCHIVE_BUCKET not set, summary documents are kept in memory")
		return blobstore.NewMemoryStore(), nil
	}
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.New(s3.Options{
		Region:       awsCfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		BaseEndpoint: awsCfg.BaseEndpoint,
		UsePathStyle: true,
	})
	return blobstore.NewS3Store(client, cfg.ArchiveBucket), nil
}
