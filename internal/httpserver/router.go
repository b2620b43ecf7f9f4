package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"todoagent/internal/handler"
)

// Pinger is the readiness probe target; nil means always ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth     *handler.AuthHandler
	Tasks    *handler.TaskHandler
	Chat     *handler.ChatHandler
	Verifier TokenVerifier
	Limiter  *limiter.Limiter
	DB       Pinger
	Logger   *zap.Logger
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(d Deps) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), RequestLogger(d.Logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
			defer cancel()
			if err := d.DB.Ping(ctx); err != nil {
				d.Logger.Warn("Readiness check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Public
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login)

	// Protected
	protected := api.Group("")
	protected.Use(AuthMiddleware(d.Verifier))
	{
		chat := []gin.HandlerFunc{d.Chat.Chat}
		if d.Limiter != nil {
			chat = append([]gin.HandlerFunc{RateLimitMiddleware(d.Limiter, d.Logger)}, chat...)
		}
		protected.POST("/chat", chat...)

		protected.GET("/tasks", d.Tasks.ListTasks)
		protected.POST("/tasks", d.Tasks.CreateTask)
		protected.GET("/tasks/:id", d.Tasks.GetTask)
		protected.PATCH("/tasks/:id", d.Tasks.UpdateTask)
		protected.DELETE("/tasks/:id", d.Tasks.DeleteTask)
		protected.POST("/tasks/:id/complete", d.Tasks.CompleteTask)

		protected.GET("/tags", d.Tasks.ListTags)
		protected.POST("/tags", d.Tasks.CreateTag)
		protected.DELETE("/tags/:id", d.Tasks.DeleteTag)

		protected.GET("/conversations", d.Chat.ListConversations)
		protected.GET("/conversations/:id/messages", d.Chat.ListMessages)
		protected.DELETE("/conversations/:id", d.Chat.DeleteConversation)
	}

	return &Router{Engine: r}
}

// Server wraps the engine in an http.Server so main can shut it down.
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
