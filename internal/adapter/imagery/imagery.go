// Package imagery defines the remote imagery service the pipeline queries and
// renders through.
package imagery

import (
	"context"
	"errors"
	"time"

	"go.ngs.io/satellite-image-api/internal/domain"
)

// Service is the interface for querying and rendering satellite imagery.
type Service interface {
	// ListImages returns the images of a collection that intersect the query
	// region, were acquired in [Start, End) and pass the property filter.
	// Order is unspecified.
	ListImages(ctx context.Context, q Query) ([]Image, error)

	// BandNames returns the band identifiers present on an image.
	BandNames(ctx context.Context, imageID string) ([]string, error)

	// Thumbnail renders a composite over a region and returns a URL the client
	// can fetch the PNG from.
	Thumbnail(ctx context.Context, req ThumbnailRequest) (string, error)
}

// Query selects images from one collection.
type Query struct {
	Collection string
	Region     *domain.Region
	Start      time.Time
	End        time.Time
	Filter     PropertyFilter
}

// PropertyFilter keeps images whose numeric Property is strictly below Below.
type PropertyFilter struct {
	Property string
	Below    float64
}

// QueryFor builds the query a catalog entry issues for a region.
func QueryFor(entry domain.CatalogEntry, region *domain.Region) Query {
	return Query{
		Collection: entry.Collection,
		Region:     region,
		Start:      entry.Start,
		End:        entry.End,
		Filter: PropertyFilter{
			Property: entry.CloudAttribute,
			Below:    entry.CloudThreshold,
		},
	}
}

// Image is an image listed from a collection.
type Image struct {
	ID         string
	Collection string
	StartTime  time.Time
	Properties map[string]float64
	// Bands may be empty when the service does not return them on listing.
	Bands []string
}

// Property returns a numeric property and whether it was set.
func (i Image) Property(name string) (float64, bool) {
	v, ok := i.Properties[name]
	return v, ok
}

// ThumbnailRequest describes a rendered thumbnail.
type ThumbnailRequest struct {
	Composite domain.Composite
	Region    *domain.Region
	// Scale is the output resolution in metres per pixel.
	Scale  float64
	Format string
	// VisMin and VisMax stretch band values to the display range when set.
	VisMin float64
	VisMax float64
}

// HasVisRange reports whether a display stretch was requested.
func (r ThumbnailRequest) HasVisRange() bool {
	return r.VisMin != 0 || r.VisMax != 0
}

// ErrUnknownThumbnail is returned by a PixelServer for names it never issued or
// has forgotten.
var ErrUnknownThumbnail = errors.New("unknown thumbnail")

// PixelServer is implemented by services that serve rendered thumbnails
// themselves rather than pointing at a remote host.
type PixelServer interface {
	Pixels(ctx context.Context, name string) ([]byte, error)
}
