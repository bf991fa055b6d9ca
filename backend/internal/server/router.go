package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/handler"
	"github.com/antrhizom/prompt-managerin/backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterOptions 汇总路由依赖，为空的 handler 不注册对应接口。
type RouterOptions struct {
	ServiceName      string
	PromptHandler    *handler.PromptHandler
	SessionHandler   *handler.SessionHandler
	DashboardHandler *handler.DashboardHandler
	Session          *middleware.SessionMiddleware
	AllowedOrigins   []string
	StaticDir        string
	RequestLog       bool
}

// NewRouter 构建应用的 Gin Engine，汇总所有 REST 接口与公共中间件配置。
func NewRouter(opts RouterOptions) (*gin.Engine, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc:  originAllowed(opts.AllowedOrigins),
	}))
	if opts.RequestLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/metrics", "/api/prompts/stream"},
			Formatter: gin.LogFormatter(func(params gin.LogFormatterParams) string {
				return fmt.Sprintf("%s - [%s] \"%s %s\" %d %s\n",
					params.ClientIP,
					params.TimeStamp.Format(time.RFC3339),
					params.Method,
					params.Path,
					params.StatusCode,
					params.Latency,
				)
			}),
		}))
	}
	if opts.Session != nil {
		r.Use(opts.Session.Handle())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	{
		if opts.DashboardHandler != nil {
			api.GET("/catalog", opts.DashboardHandler.Catalog)
			api.GET("/dashboard", opts.DashboardHandler.Dashboard)
		}

		if opts.SessionHandler != nil {
			sessions := api.Group("/session")
			sessions.GET("/captcha", opts.SessionHandler.Captcha)
			sessions.POST("/code", opts.SessionHandler.NewCode)
			sessions.GET("/lookup/:code", opts.SessionHandler.Lookup)
			sessions.POST("/login", opts.SessionHandler.Login)
			sessions.GET("/me", opts.SessionHandler.Me)
		}

		if opts.PromptHandler != nil {
			prompts := api.Group("/prompts")
			prompts.GET("", opts.PromptHandler.List)
			prompts.GET("/stream", opts.PromptHandler.Stream)
			prompts.GET("/:id", opts.PromptHandler.Get)
			prompts.GET("/:id/download", opts.PromptHandler.Download)
			prompts.POST("/:id/ratings", opts.PromptHandler.Rate)
			prompts.POST("/:id/usage", opts.PromptHandler.RecordUsage)

			// 写入作者信息的操作需要会话身份。
			owned := prompts.Group("", middleware.RequireActor())
			owned.POST("", opts.PromptHandler.Create)
			owned.GET("/:id/draft", opts.PromptHandler.EditDraft)
			owned.PUT("/:id", opts.PromptHandler.Update)
			owned.DELETE("/:id", opts.PromptHandler.Delete)
			owned.POST("/:id/deletion-requests", opts.PromptHandler.RequestDeletion)
			owned.POST("/:id/comments", opts.PromptHandler.AddComment)

			api.GET("/moderation/deletion-requests", opts.PromptHandler.ModerationQueue)
		}
	}

	if opts.StaticDir != "" {
		r.NoRoute(spaFallback(opts.StaticDir))
	}
	return r, nil
}

// originAllowed 放行本地开发地址与配置的来源，配置 "*" 时放行全部。
func originAllowed(allowed []string) func(string) bool {
	return func(origin string) bool {
		if origin == "" {
			return false
		}
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			return true
		}
		for _, candidate := range allowed {
			candidate = strings.TrimRight(strings.TrimSpace(candidate), "/")
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}
