package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/domain"
)

// Rendering defaults.
const (
	DefaultScale  = 20.0
	DefaultFormat = "png"
)

var tracer = otel.Tracer("go.ngs.io/satellite-image-api/internal/usecase")

// SatelliteImageRequest encapsulates a thumbnail request.
type SatelliteImageRequest struct {
	// Coordinates is one [lon, lat] point or a polygon ring of three or more.
	Coordinates [][]float64 `json:"coordinates"`
	// BufferKm is the point buffer radius. Ignored for polygons.
	BufferKm *float64 `json:"buffer_km,omitempty"`
}

// SatelliteImageResponse is the result of a successful request.
type SatelliteImageResponse struct {
	ImageURL   string   `json:"image_url"`
	Collection string   `json:"collection"`
	ImageID    string   `json:"image_id"`
	CloudCover float64  `json:"cloud_cover"`
	Bands      []string `json:"bands"`
}

// Validate checks the request shape. Coordinate ranges and the point buffer
// are checked when the region is built; polygons ignore buffer_km.
func (r *SatelliteImageRequest) Validate() error {
	if len(r.Coordinates) == 0 {
		return fmt.Errorf("%w: coordinates are required", domain.ErrInvalidGeometry)
	}
	return nil
}

func (r *SatelliteImageRequest) bufferKm() float64 {
	if r.BufferKm == nil {
		return domain.DefaultBufferKm
	}
	return *r.BufferKm
}

// ImageryUseCase runs the thumbnail pipeline: build the region, select an
// image, resolve its bands, mask and render.
type ImageryUseCase struct {
	service  imagery.Service
	selector *Selector
	catalog  domain.Catalog
}

// NewImageryUseCase creates the use case. The catalog must already be valid.
func NewImageryUseCase(service imagery.Service, selector *Selector, catalog domain.Catalog) *ImageryUseCase {
	return &ImageryUseCase{
		service:  service,
		selector: selector,
		catalog:  catalog,
	}
}

// Catalog returns the catalog in priority order.
func (uc *ImageryUseCase) Catalog() domain.Catalog {
	return uc.catalog
}

// Execute returns a thumbnail URL for the request's region. Errors wrap one of
// ErrInvalidGeometry, ErrNoImageFound, ErrBandResolution or ErrRender.
func (uc *ImageryUseCase) Execute(ctx context.Context, req SatelliteImageRequest) (*SatelliteImageResponse, error) {
	ctx, span := tracer.Start(ctx, "satellite_image")
	defer span.End()

	resp, err := uc.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("image.id", resp.ImageID),
		attribute.String("image.collection", resp.Collection),
	)
	return resp, nil
}

func (uc *ImageryUseCase) execute(ctx context.Context, req SatelliteImageRequest) (*SatelliteImageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	region, err := stage(ctx, "build_region", func(context.Context) (*domain.Region, error) {
		return domain.BuildRegion(req.Coordinates, req.bufferKm())
	})
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("region.kind", region.Kind().String()))

	candidate, err := stage(ctx, "select_image", func(ctx context.Context) (*domain.Candidate, error) {
		return uc.selector.SelectBestImage(ctx, region, uc.catalog)
	})
	if err != nil {
		return nil, err
	}
	entry := uc.catalog[candidate.EntryIndex]

	bands, err := stage(ctx, "resolve_bands", func(ctx context.Context) (domain.RGB, error) {
		return uc.resolveBands(ctx, entry, candidate)
	})
	if err != nil {
		return nil, err
	}

	composite := domain.ApplyMask(candidate.ImageID, bands)
	url, err := stage(ctx, "render", func(ctx context.Context) (string, error) {
		return uc.render(ctx, entry, composite, region)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("entry", entry.Name).
		Str("image_id", candidate.ImageID).
		Float64("cloud", candidate.Cloud).
		Str("region", region.Kind().String()).
		Msg("thumbnail rendered")

	return &SatelliteImageResponse{
		ImageURL:   url,
		Collection: candidate.Collection,
		ImageID:    candidate.ImageID,
		CloudCover: candidate.Cloud,
		Bands:      bands.Slice(),
	}, nil
}

// resolveBands uses the bands reported by the listing when present and
// otherwise asks the service.
func (uc *ImageryUseCase) resolveBands(ctx context.Context, entry domain.CatalogEntry, c *domain.Candidate) (domain.RGB, error) {
	names := c.Bands
	if len(names) == 0 {
		callCtx, cancel := uc.selector.callContext(ctx)
		var err error
		names, err = uc.service.BandNames(callCtx, c.ImageID)
		cancel()
		if err != nil {
			return domain.RGB{}, remoteError("band names", err)
		}
	}
	rgb, _, err := domain.ResolveBands(entry, names)
	return rgb, err
}

func (uc *ImageryUseCase) render(ctx context.Context, entry domain.CatalogEntry, composite domain.Composite, region *domain.Region) (string, error) {
	callCtx, cancel := uc.selector.callContext(ctx)
	defer cancel()
	url, err := uc.service.Thumbnail(callCtx, imagery.ThumbnailRequest{
		Composite: composite,
		Region:    region,
		Scale:     DefaultScale,
		Format:    DefaultFormat,
		VisMin:    entry.VisMin,
		VisMax:    entry.VisMax,
	})
	if err != nil {
		return "", remoteError("thumbnail", err)
	}
	return url, nil
}

// stage runs fn inside a child span named name.
func stage[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}
