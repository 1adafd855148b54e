// Package memory provides a fixture-backed imagery.Service for development and
// tests. It applies the same filter semantics as the remote service and can
// render thumbnails of fixture rasters itself.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
)

// maxJobs bounds the number of remembered thumbnail jobs; the oldest are
// forgotten first.
const maxJobs = 1024

// Service is an in-memory imagery.Service.
type Service struct {
	publicURL string
	fixtures  []Fixture
	byID      map[string]int

	mu   sync.Mutex
	jobs map[string]imagery.ThumbnailRequest
	fifo []string
}

var (
	_ imagery.Service     = (*Service)(nil)
	_ imagery.PixelServer = (*Service)(nil)
)

// New creates a service over the given fixtures. Thumbnail URLs are rooted at
// publicURL, which should point at this process's HTTP server.
func New(publicURL string, fixtures []Fixture) *Service {
	byID := make(map[string]int, len(fixtures))
	for i, f := range fixtures {
		byID[f.Image.ID] = i
	}
	return &Service{
		publicURL: strings.TrimRight(publicURL, "/"),
		fixtures:  fixtures,
		byID:      byID,
		jobs:      make(map[string]imagery.ThumbnailRequest),
	}
}

// ListImages returns fixtures of the collection whose footprint intersects the
// region bounds, acquired in [Start, End), with the filter property strictly
// below its limit. Images lacking the property are excluded.
func (s *Service) ListImages(ctx context.Context, q imagery.Query) ([]imagery.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Region == nil {
		return nil, fmt.Errorf("memory: query region is required")
	}
	region := q.Region.Bound()

	var out []imagery.Image
	for _, f := range s.fixtures {
		img := f.Image
		if img.Collection != q.Collection {
			continue
		}
		if !f.Footprint.Intersects(region) {
			continue
		}
		if img.StartTime.Before(q.Start) || !img.StartTime.Before(q.End) {
			continue
		}
		if q.Filter.Property != "" {
			v, ok := img.Property(q.Filter.Property)
			if !ok || v >= q.Filter.Below {
				continue
			}
		}
		out = append(out, img)
	}
	return out, nil
}

// BandNames returns the fixture's bands.
func (s *Service) BandNames(ctx context.Context, imageID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok := s.fixture(imageID)
	if !ok {
		return nil, fmt.Errorf("memory: image %s not found", imageID)
	}
	return append([]string(nil), f.Image.Bands...), nil
}

// Thumbnail records a render job and returns the URL that serves it.
func (s *Service) Thumbnail(ctx context.Context, req imagery.ThumbnailRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !strings.EqualFold(req.Format, "png") {
		return "", fmt.Errorf("memory: unsupported format %q", req.Format)
	}
	if req.Scale <= 0 {
		return "", fmt.Errorf("memory: scale must be positive")
	}
	if req.Region == nil {
		return "", fmt.Errorf("memory: thumbnail region is required")
	}
	f, ok := s.fixture(req.Composite.ImageID)
	if !ok {
		return "", fmt.Errorf("memory: image %s not found", req.Composite.ImageID)
	}
	present := make(map[string]bool, len(f.Image.Bands))
	for _, b := range f.Image.Bands {
		present[b] = true
	}
	for _, b := range req.Composite.Bands.Slice() {
		if !present[b] {
			return "", fmt.Errorf("memory: band %s not present on image %s", b, f.Image.ID)
		}
	}

	name := uuid.NewString()

	s.mu.Lock()
	s.jobs[name] = req
	s.fifo = append(s.fifo, name)
	for len(s.fifo) > maxJobs {
		delete(s.jobs, s.fifo[0])
		s.fifo = s.fifo[1:]
	}
	s.mu.Unlock()

	return fmt.Sprintf("%s/v1/thumbnails/%s:getPixels", s.publicURL, name), nil
}

func (s *Service) job(name string) (imagery.ThumbnailRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.jobs[name]
	return req, ok
}

func (s *Service) fixture(id string) (Fixture, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Fixture{}, false
	}
	return s.fixtures[i], true
}
