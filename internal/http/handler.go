package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/domain"
	"go.ngs.io/satellite-image-api/internal/observability"
	"go.ngs.io/satellite-image-api/internal/usecase"
)

const pixelsSuffix = ":getPixels"

// Handler handles HTTP requests for satellite thumbnails.
type Handler struct {
	imageryUC *usecase.ImageryUseCase
	pixels    imagery.PixelServer
	metrics   *observability.Collector
}

// NewHandler creates a new HTTP handler.
func NewHandler(imageryUC *usecase.ImageryUseCase, pixels imagery.PixelServer, metrics *observability.Collector) *Handler {
	return &Handler{
		imageryUC: imageryUC,
		pixels:    pixels,
		metrics:   metrics,
	}
}

// GetSatelliteImage handles POST /get_satellite_image/.
func (h *Handler) GetSatelliteImage(c *gin.Context) {
	start := time.Now()

	var req usecase.SatelliteImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.ObserveRequest(observability.OutcomeInvalidGeometry, time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}

	resp, err := h.imageryUC.Execute(c.Request.Context(), req)
	if err != nil {
		status, outcome, detail := classify(err)
		h.metrics.ObserveRequest(outcome, time.Since(start))
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("outcome", outcome).Msg("satellite image request failed")
		}
		_ = c.Error(err)
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	h.metrics.ObserveRequest(observability.OutcomeOK, time.Since(start))
	c.JSON(http.StatusOK, resp)
}

// classify maps a pipeline error to an HTTP status, a metrics outcome and a
// client-safe message.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidGeometry):
		return http.StatusBadRequest, observability.OutcomeInvalidGeometry, err.Error()
	case errors.Is(err, domain.ErrNoImageFound):
		return http.StatusNotFound, observability.OutcomeNoImage, domain.ErrNoImageFound.Error()
	case errors.Is(err, domain.ErrBandResolution):
		return http.StatusInternalServerError, observability.OutcomeBandResolution, "image bands could not be resolved"
	default:
		return http.StatusInternalServerError, observability.OutcomeRender, "thumbnail rendering failed"
	}
}

// ListCatalog handles GET /v1/catalog.
func (h *Handler) ListCatalog(c *gin.Context) {
	catalog := h.imageryUC.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"catalog": catalog,
		"count":   len(catalog),
	})
}

// GetThumbnailPixels handles GET /v1/thumbnails/:name, serving thumbnails
// rendered in-process.
func (h *Handler) GetThumbnailPixels(c *gin.Context) {
	name := strings.TrimSuffix(c.Param("name"), pixelsSuffix)

	data, err := h.pixels.Pixels(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, imagery.ErrUnknownThumbnail) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "thumbnail not found"})
			return
		}
		log.Error().Err(err).Str("thumbnail", name).Msg("thumbnail render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "thumbnail rendering failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
