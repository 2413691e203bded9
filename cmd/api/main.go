package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"docgov/docs"
	"docgov/internal/audit"
	"docgov/internal/auth"
	"docgov/internal/config"
	"docgov/internal/database"
	"docgov/internal/database/migration"
	"docgov/internal/extract"
	"docgov/internal/governance"
	handlers "docgov/internal/http/handler"
	"docgov/internal/logger"
	"docgov/internal/metrics"
	"docgov/internal/notify"
	"docgov/internal/otel"
	"docgov/internal/policy"
	"docgov/internal/repository/postgres"
	"docgov/internal/review"
	"docgov/internal/scheduler"
	"docgov/internal/server"
	"docgov/internal/service"
	"docgov/internal/storage"
	"docgov/internal/summarize"
)

// @title Document Governance API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("api exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.AppConfig, zl *zap.Logger) error {
	shutdownTracing, err := otel.Init(ctx, cfg.Tracing, zl)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	retryPolicy := server.RetryPolicy(cfg.Retry)

	db, err := database.NewPostgres(ctx, cfg.Database, retryPolicy, zl)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, zl, cfg.Database.Host); err != nil {
		return err
	}

	objStore, err := storage.NewMinIO(cfg.MinIO, zl)
	if err != nil {
		return err
	}

	stream, err := notify.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer stream.Close()

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	reg := server.NewRegistry()
	govMetrics, err := metrics.NewGovernance(reg)
	if err != nil {
		return err
	}

	policyRepo := postgres.NewPolicyPostgres(db)
	cache := policy.NewCache(policyRepo, zl)
	if err := cache.Reload(ctx); err != nil {
		return err
	}

	docRepo := postgres.NewDocumentPostgres(db)
	auditLog := audit.NewLogger(postgres.NewAuditPostgres(db), retryPolicy, zl)

	docSvc := service.NewDocumentService(service.Dependencies{
		Store:      objStore,
		Documents:  docRepo,
		Summaries:  postgres.NewSummaryPostgres(db),
		Engine:     governance.NewEngine(cache),
		Templates:  cache,
		Extractor:  extract.New(zl),
		Summarizer: summarize.NewPlaceholder(),
		Notifier:   notify.NewNotifier(stream, retryPolicy, zl),
		Audit:      auditLog,
		Metrics:    govMetrics,
		Retry:      retryPolicy,
		Recovery: service.RecoveryOptions{
			StaleAfter:  cfg.Recovery.StaleAfter,
			MaxAttempts: cfg.Recovery.MaxAttempts,
			BatchSize:   cfg.Recovery.BatchSize,
		},
		PresignExpiry: cfg.MinIO.PresignExpiry,
		Logger:        zl,
	})

	sched := scheduler.New(zl)
	if err := sched.Add(ctx, scheduler.RecoverySweep(docSvc, cfg.Recovery.Schedule)); err != nil {
		return err
	}
	if err := sched.Add(ctx, scheduler.PolicyReload(cache, cfg.Policy.ReloadSchedule)); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	app, err := server.NewApp(zl, reg)
	if err != nil {
		return err
	}
	handlers.RegisterRoutes(app, handlers.Deps{
		DB:        db,
		Gatherer:  reg,
		Auth:      authn,
		Documents: docSvc,
		Policies:  policy.NewService(policyRepo, cache, zl),
		Reviews:   review.NewService(docRepo, auditLog, govMetrics, retryPolicy, zl),
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return server.Serve(ctx, app, ":"+cfg.Port, zl)
}
