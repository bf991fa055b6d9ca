package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/app"
	"github.com/antrhizom/prompt-managerin/backend/internal/bootstrap"
	appLogger "github.com/antrhizom/prompt-managerin/backend/internal/infra/logger"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/metrics"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := appLogger.Init(); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLogger.Sync()
	logger := appLogger.S()

	resources, err := app.Bootstrap(ctx, logger)
	if err != nil {
		logger.Fatalw("bootstrap failed", "error", err)
	}
	defer func() {
		if err := resources.Close(); err != nil {
			logger.Warnw("resource cleanup error", "error", err)
		}
	}()

	if resources.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.MustRegister()
	shutdownTracing := tracing.Init(ctx, logger, tracing.Config{
		ServiceName: "prompt-managerin",
		Environment: resources.Config.Environment,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	application, err := bootstrap.BuildApplication(ctx, logger, resources)
	if err != nil {
		logger.Errorw("build application failed", "error", err)
		return
	}
	logger.Infow("application ready",
		"store", resources.Config.Store.Driver,
		"redis", resources.Redis != nil,
		"records", len(application.Mirror.Snapshot().Records),
	)

	if err := application.Run(ctx); err != nil {
		logger.Errorw("application stopped with error", "error", err)
		return
	}
	logger.Infow("shutdown complete")
}
