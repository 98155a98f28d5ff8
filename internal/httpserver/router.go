package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sailsdock/internal/handler"
)

type Handlers struct {
	Auth       *handler.AuthHandler
	Timeline   *handler.TimelineHandler
	Email      *handler.EmailHandler
	Connection *handler.ConnectionHandler
}

func NewRouter(jwtSecret string, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handler.TraceMiddleware(), handler.MetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("")
	authed.Use(handler.AuthMiddleware(jwtSecret))
	{
		authed.GET("/businesses/:id/timeline", h.Timeline.BusinessTimeline)
		authed.GET("/contacts/:id/timeline", h.Timeline.ContactTimeline)

		authed.GET("/emails", h.Email.List)
		authed.PATCH("/emails/:id", h.Email.Update)

		authed.POST("/mailboxes", h.Connection.Create)
		authed.GET("/mailboxes", h.Connection.List)
		authed.DELETE("/mailboxes/:id", h.Connection.Delete)
		authed.POST("/mailboxes/:id/sync", h.Connection.TriggerSync)
	}

	return router
}
