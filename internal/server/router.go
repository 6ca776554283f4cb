package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cataloghq/catalog-backend/internal/handlers"
	"github.com/cataloghq/catalog-backend/internal/utils"
)

type RouterConfig struct {
	ImportsHandler *handlers.ImportsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("catalog-backend"))

	origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", nil), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		imports := api.Group("/imports")
		imports.POST("/jobs", cfg.ImportsHandler.SubmitJob)
		imports.GET("/jobs/:id", cfg.ImportsHandler.GetJob)
		imports.DELETE("/jobs/:id", cfg.ImportsHandler.CancelJob)
		imports.GET("/batches/:batch_id", cfg.ImportsHandler.GetBatch)
		imports.GET("/sources", cfg.ImportsHandler.ListSources)
	}

	return router
}
