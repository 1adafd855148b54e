package http

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/observability"
	"go.ngs.io/satellite-image-api/internal/usecase"
)

// SetupRouter creates and configures the Gin router. pixels may be nil when
// thumbnails are served by the remote imagery service.
func SetupRouter(imageryUC *usecase.ImageryUseCase, pixels imagery.PixelServer, metrics *observability.Collector) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger())
	router.Use(gin.CustomRecovery(HandlePanics()))
	if metrics != nil {
		router.Use(metrics.Middleware())
	}

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()

	// Default to allow all origins if not specified.
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}

	router.Use(cors.New(corsConfig))

	handler := NewHandler(imageryUC, pixels, metrics)

	router.POST("/get_satellite_image/", handler.GetSatelliteImage)

	v1 := router.Group("/v1")
	v1.GET("/catalog", handler.ListCatalog)
	if pixels != nil {
		v1.GET("/thumbnails/:name", handler.GetThumbnailPixels)
	}

	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return router
}
