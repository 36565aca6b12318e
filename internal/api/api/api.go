package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"

	"contestbot/cmd/middleware"
	"contestbot/internal/metrics"
	"contestbot/internal/service"
)

type Routers struct {
	Service service.Service
	// APIKeys guard /v1/admin; an empty set locks it.
	APIKeys map[string]struct{}
	// InsecureAdmin drops the API key check on /v1/admin.
	InsecureAdmin bool
	// Webhook mounts POST /v1/updates.
	Webhook bool
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/healthz", func(c *ginext.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	app.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := app.Group("/v1")
	if r.Webhook {
		apiGroup.POST("/updates", r.Service.ReceiveUpdate)
	}

	adminGroup := apiGroup.Group("/admin")
	if !r.InsecureAdmin {
		adminGroup.Use(middleware.APIKeyAuth(r.APIKeys))
	}
	adminGroup.GET("/status", r.Service.Status)
	adminGroup.POST("/contest/open", r.Service.OpenContest)
	adminGroup.POST("/contest/close", r.Service.CloseContest)
	adminGroup.GET("/channels", r.Service.ListChannels)
	adminGroup.POST("/channels", r.Service.AddChannel)
	adminGroup.DELETE("/channels/:channel", r.Service.RemoveChannel)
	adminGroup.POST("/ticket-floor", r.Service.ResetTicketFloor)
	adminGroup.GET("/participants", r.Service.ListParticipants)

	return app
}
