// Command reviewer drains the review queue and serves the override endpoint.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docgov/internal/audit"
	"docgov/internal/auth"
	"docgov/internal/config"
	"docgov/internal/database"
	handlers "docgov/internal/http/handler"
	"docgov/internal/logger"
	"docgov/internal/metrics"
	"docgov/internal/notify"
	"docgov/internal/otel"
	"docgov/internal/repository/postgres"
	"docgov/internal/review"
	"docgov/internal/server"
)

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
		zl.Fatal("reviewer exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.AppConfig, zl *zap.Logger) error {
	cfg.Tracing.ServiceName += "-reviewer"
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

	docRepo := postgres.NewDocumentPostgres(db)
	auditLog := audit.NewLogger(postgres.NewAuditPostgres(db), retryPolicy, zl)

	consumer := review.NewConsumer(stream, docRepo, review.ConsumerConfig{
		Name:      cfg.Review.ConsumerName,
		BatchSize: cfg.Review.BatchSize,
		Block:     cfg.Review.Block,
		ClaimIdle: cfg.Review.ClaimIdle,
	}, zl)

	app, err := server.NewApp(zl, reg)
	if err != nil {
		return err
	}
	handlers.RegisterRoutes(app, handlers.Deps{
		DB:       db,
		Gatherer: reg,
		Auth:     authn,
		Reviews:  review.NewService(docRepo, auditLog, govMetrics, retryPolicy, zl),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return server.Serve(gctx, app, ":"+cfg.ReviewerPort, zl) })
	return g.Wait()
}
