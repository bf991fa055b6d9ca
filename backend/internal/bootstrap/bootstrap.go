package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/app"
	"github.com/antrhizom/prompt-managerin/backend/internal/config"
	"github.com/antrhizom/prompt-managerin/backend/internal/handler"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/captcha"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/email"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/ratelimit"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/token"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/webhook"
	"github.com/antrhizom/prompt-managerin/backend/internal/middleware"
	"github.com/antrhizom/prompt-managerin/backend/internal/repository"
	"github.com/antrhizom/prompt-managerin/backend/internal/server"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/dashboard"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"
	promptsvc "github.com/antrhizom/prompt-managerin/backend/internal/service/prompt"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/session"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "prompt-managerin"
	shutdownTimeout = 10 * time.Second
)

// Application 是组装完成的服务进程。
type Application struct {
	Resources *app.Resources
	Catalog   *config.CatalogManager
	Hub       *livequery.Hub
	Mirror    *mirror.Mirror
	Prompts   *promptsvc.Service
	Dashboard *dashboard.Service
	Router    http.Handler

	logger *zap.SugaredLogger
}

// BuildApplication 迁移表结构、完成首次镜像加载并装配全部 handler。镜像首次加载失败时返回错误。
func BuildApplication(ctx context.Context, logger *zap.SugaredLogger, resources *app.Resources) (*Application, error) {
	cfg := resources.Config

	prompts := repository.NewPromptRepository(resources.DB)
	users := repository.NewUserRepository(resources.DB)
	if err := prompts.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate prompts: %w", err)
	}
	if err := users.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate users: %w", err)
	}

	catalog, err := config.NewCatalogManager(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	hub := livequery.NewHub(logger.With("component", "livequery"))
	if resources.Redis != nil {
		hub.AttachRedis(resources.Redis, cfg.Redis.Channel)
	}

	localMirror := mirror.New(prompts, hub, logger.With("component", "mirror"))
	if err := localMirror.Start(ctx); err != nil {
		return nil, err
	}

	stats := dashboard.NewService(catalog, logger.With("component", "dashboard"))
	stats.Attach(localMirror)
	catalog.OnChange(stats.CatalogChanged)

	notifiers, err := buildNotifiers(cfg.Moderation, logger)
	if err != nil {
		return nil, err
	}
	promptService := promptsvc.NewService(prompts, hub, localMirror, catalog, logger.With("component", "prompt"), notifiers...)

	tokens, err := token.NewJWTManager(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}
	limiter := buildLimiter(resources, logger)
	captchaManager, err := buildCaptcha(resources, limiter, logger)
	if err != nil {
		return nil, err
	}

	var (
		verifier session.CaptchaVerifier
		issuer   handler.CaptchaIssuer
	)
	if captchaManager != nil {
		verifier = captchaManager
		issuer = captchaManager
	}
	sessionService := session.NewService(users, tokens, verifier, logger.With("component", "session"))

	limits := cfg.RateLimits
	router, err := server.NewRouter(server.RouterOptions{
		ServiceName: serviceName,
		PromptHandler: handler.NewPromptHandler(promptService, localMirror, limiter, handler.PromptRateLimits{
			Create:  handler.RateLimit{Limit: limits.CreateLimit, Window: limits.CreateWindow},
			React:   handler.RateLimit{Limit: limits.ReactLimit, Window: limits.ReactWindow},
			Usage:   handler.RateLimit{Limit: limits.UsageLimit, Window: limits.UsageWindow},
			Report:  handler.RateLimit{Limit: limits.ReportLimit, Window: limits.ReportWindow},
			Comment: handler.RateLimit{Limit: limits.CommentLimit, Window: limits.CommentWindow},
		}),
		SessionHandler:   handler.NewSessionHandler(sessionService, issuer),
		DashboardHandler: handler.NewDashboardHandler(stats, catalog),
		Session:          middleware.NewSessionMiddleware(tokens, logger.With("component", "session.middleware")),
		AllowedOrigins:   cfg.AllowedOrigins,
		StaticDir:        cfg.StaticDir,
		RequestLog:       cfg.Environment != "production",
	})
	if err != nil {
		return nil, err
	}

	return &Application{
		Resources: resources,
		Catalog:   catalog,
		Hub:       hub,
		Mirror:    localMirror,
		Prompts:   promptService,
		Dashboard: stats,
		Router:    router,
		logger:    logger,
	}, nil
}

// Run 在同一个 errgroup 中运行 HTTP 服务、镜像循环与 Redis 桥接，ctx 结束后优雅退出。
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Resources.Config.ServerPort,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Catalog.Watch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Hub.Run(gctx) })
	g.Go(func() error { return a.Mirror.Run(gctx) })
	g.Go(func() error {
		a.logger.Infow("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.Prompts.Wait()
		return err
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildNotifiers(cfg config.ModerationConfig, logger *zap.SugaredLogger) ([]promptsvc.Notifier, error) {
	var notifiers []promptsvc.Notifier

	smtpCfg, smtpEnabled, err := email.LoadSMTPConfigFromEnv(cfg.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}
	if smtpEnabled {
		sender, err := email.NewSender(smtpCfg)
		if err != nil {
			return nil, fmt.Errorf("init smtp sender: %w", err)
		}
		notifiers = append(notifiers, sender)
	}

	aliyunCfg, aliyunEnabled, err := email.LoadAliyunConfigFromEnv(cfg.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("load aliyun config: %w", err)
	}
	if aliyunEnabled {
		sender, err := email.NewAliyunSender(aliyunCfg)
		if err != nil {
			return nil, fmt.Errorf("init aliyun sender: %w", err)
		}
		notifiers = append(notifiers, sender)
	}

	if cfg.WebhookURL != "" {
		hook, err := webhook.NewNotifier(webhook.Options{
			URL:      cfg.WebhookURL,
			Attempts: cfg.WebhookAttempts,
			Delay:    cfg.WebhookDelay,
			Timeout:  cfg.WebhookTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init webhook: %w", err)
		}
		notifiers = append(notifiers, hook)
	}

	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	if len(names) == 0 {
		logger.Infow("no moderation notifier configured; deletion requests are only stored")
	} else {
		logger.Infow("moderation notifiers enabled", "channels", names)
	}
	return notifiers, nil
}

func buildLimiter(resources *app.Resources, logger *zap.SugaredLogger) ratelimit.Limiter {
	memory := ratelimit.NewMemoryLimiter()
	if resources.Redis == nil {
		logger.Infow("using in-memory rate limiter; limits are per instance")
		return memory
	}
	return ratelimit.NewFallbackLimiter(ratelimit.NewRedisLimiter(resources.Redis, ""), memory, logger.With("component", "ratelimit"))
}

func buildCaptcha(resources *app.Resources, limiter ratelimit.Limiter, logger *zap.SugaredLogger) (*captcha.Manager, error) {
	opts, enabled, err := captcha.LoadOptionsFromEnv()
	if err != nil {
		logger.Errorw("load captcha config failed", "error", err)
		return nil, fmt.Errorf("load captcha config: %w", err)
	}
	if !enabled {
		return nil, nil
	}

	var manager *captcha.Manager
	if resources.Redis != nil {
		manager = captcha.NewManager(captcha.NewRedisStore(resources.Redis, opts.Prefix, opts.TTL), limiter, opts)
	} else {
		manager = captcha.NewManager(nil, limiter, opts)
		logger.Infow("captcha answers kept in memory; not shared across instances")
	}
	logger.Infow("captcha enabled", "prefix", opts.Prefix, "ttl", opts.TTL)
	return manager, nil
}
