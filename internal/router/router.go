package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	helpyhttp "github.com/psds-microservice/helpy/http"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/support-bot/api"
	"github.com/psds-microservice/support-bot/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// PathMetrics: в helpy/paths нет пути для Prometheus.
const PathMetrics = "/metrics"

func New(health *handler.HealthHandler, tickets *handler.TicketHandler, gatherer prometheus.Gatherer) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(paths.PathHealth, health.Health)
	r.GET(paths.PathReady, health.Ready)
	if gatherer != nil {
		r.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		switch strings.TrimPrefix(c.Param("any"), "/") {
		case "openapi.json":
			c.Data(http.StatusOK, helpyhttp.ContentTypeJSON, api.OpenAPISpec)
			return
		case "":
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickets", tickets.List)
		v1.GET("/tickets/unseen", tickets.Unseen)
		v1.GET("/tickets/:id", tickets.Get)
		v1.GET("/tickets/:id/messages", tickets.Messages)
		v1.POST("/tickets/:id/ack", tickets.Ack)
	}

	return r
}
