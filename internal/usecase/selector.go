package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/cache"
	"go.ngs.io/satellite-image-api/internal/domain"
	"go.ngs.io/satellite-image-api/internal/observability"
)

// DefaultRemoteTimeout bounds each call to the imagery service.
const DefaultRemoteTimeout = 30 * time.Second

// SelectionRecorder receives selection metrics.
type SelectionRecorder interface {
	ObserveSelection(entry string)
	ObserveCacheLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSelection(string)   {}
func (nopRecorder) ObserveCacheLookup(string) {}

// Selector picks the best image for a region by walking the catalog in
// priority order.
type Selector struct {
	service       imagery.Service
	cache         cache.SelectionCache
	recorder      SelectionRecorder
	remoteTimeout time.Duration
	group         singleflight.Group
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithCache memoises selections in c.
func WithCache(c cache.SelectionCache) SelectorOption {
	return func(s *Selector) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRecorder reports selection metrics to r.
func WithRecorder(r SelectionRecorder) SelectorOption {
	return func(s *Selector) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRemoteTimeout bounds each imagery service call.
func WithRemoteTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) {
		if d > 0 {
			s.remoteTimeout = d
		}
	}
}

// NewSelector creates a selector over service.
func NewSelector(service imagery.Service, opts ...SelectorOption) *Selector {
	s := &Selector{
		service:       service,
		cache:         cache.Noop{},
		recorder:      nopRecorder{},
		remoteTimeout: DefaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// entryResult is the outcome of querying one catalog entry. found is false
// when the filtered listing was empty.
type entryResult struct {
	candidate domain.Candidate
	found     bool
	count     int
}

// SelectBestImage returns the first catalog entry's best image for region.
// Entries are tried in order; an entry with no matching image falls through
// to the next. It returns ErrNoImageFound when every entry is empty and
// ErrRender when the imagery service fails.
//
// Concurrent calls for the same region share one selection. The shared work
// does not inherit any caller's cancellation, so a caller that gives up only
// affects itself.
func (s *Selector) SelectBestImage(ctx context.Context, region *domain.Region, catalog domain.Catalog) (*domain.Candidate, error) {
	key := cache.Key(region, catalog.Fingerprint())

	if c, ok := s.lookup(ctx, key, catalog); ok {
		s.recorder.ObserveSelection(c.EntryName)
		return c, nil
	}

	sharedCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (v any, err error) {
		// DoChan re-panics on a fresh goroutine; carry the panic back to the
		// callers instead so the HTTP recovery middleware still sees it.
		defer func() {
			if r := recover(); r != nil {
				err = &selectionPanic{value: r}
			}
		}()
		c, err := s.selectUncached(sharedCtx, region, catalog)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(sharedCtx, key, c); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("selection cache write failed")
		}
		return c, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, remoteError("select image", ctx.Err())
	case res = <-ch:
	}
	var p *selectionPanic
	if errors.As(res.Err, &p) {
		panic(p.value)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	c := *res.Val.(*domain.Candidate)
	log.Debug().
		Str("entry", c.EntryName).
		Str("image_id", c.ImageID).
		Float64("cloud", c.Cloud).
		Bool("shared", res.Shared).
		Msg("image selected")
	s.recorder.ObserveSelection(c.EntryName)
	return &c, nil
}

// selectionPanic carries a panic out of a shared selection.
type selectionPanic struct {
	value any
}

func (p *selectionPanic) Error() string {
	return fmt.Sprintf("selection panicked: %v", p.value)
}

func (s *Selector) lookup(ctx context.Context, key string, catalog domain.Catalog) (*domain.Candidate, bool) {
	c, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("selection cache read failed")
		s.recorder.ObserveCacheLookup(observability.CacheError)
		return nil, false
	case !ok:
		s.recorder.ObserveCacheLookup(observability.CacheMiss)
		return nil, false
	}
	if c.EntryIndex < 0 || c.EntryIndex >= len(catalog) || catalog[c.EntryIndex].Name != c.EntryName {
		log.Warn().Str("key", key).Str("entry", c.EntryName).Msg("cached selection does not match catalog")
		s.recorder.ObserveCacheLookup(observability.CacheMiss)
		return nil, false
	}
	s.recorder.ObserveCacheLookup(observability.CacheHit)
	return c, true
}

func (s *Selector) selectUncached(ctx context.Context, region *domain.Region, catalog domain.Catalog) (*domain.Candidate, error) {
	for i, entry := range catalog {
		res, err := s.evaluateEntry(ctx, i, entry, region)
		if err != nil {
			return nil, err
		}
		if res.found {
			return &res.candidate, nil
		}
		log.Debug().Str("entry", entry.Name).Msg("no image in catalog entry, falling back")
	}
	return nil, fmt.Errorf("%w: %d catalog entries searched", domain.ErrNoImageFound, len(catalog))
}

// evaluateEntry lists one entry's images and picks the best by cloud
// attribute, breaking ties by image ID.
func (s *Selector) evaluateEntry(ctx context.Context, index int, entry domain.CatalogEntry, region *domain.Region) (entryResult, error) {
	callCtx, cancel := s.callContext(ctx)
	images, err := s.service.ListImages(callCtx, imagery.QueryFor(entry, region))
	cancel()
	if err != nil {
		return entryResult{}, remoteError("list "+entry.Name, err)
	}

	accepted := make([]domain.Candidate, 0, len(images))
	for _, img := range images {
		cloud, ok := img.Property(entry.CloudAttribute)
		if !ok || !entry.Accepts(cloud) {
			continue
		}
		collection := img.Collection
		if collection == "" {
			collection = entry.Collection
		}
		accepted = append(accepted, domain.Candidate{
			EntryIndex: index,
			EntryName:  entry.Name,
			Collection: collection,
			ImageID:    img.ID,
			Cloud:      cloud,
			StartTime:  img.StartTime,
			Bands:      img.Bands,
		})
	}
	if len(accepted) == 0 {
		return entryResult{}, nil
	}

	slices.SortStableFunc(accepted, func(a, b domain.Candidate) int {
		c := cmp.Compare(a.Cloud, b.Cloud)
		if entry.Order == domain.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ImageID, b.ImageID)
	})
	return entryResult{candidate: accepted[0], found: true, count: len(accepted)}, nil
}

// ProbeResult reports what one catalog entry offers for a region.
type ProbeResult struct {
	Entry domain.CatalogEntry
	Count int
	Best  *domain.Candidate
	Err   error
}

// Probe evaluates every catalog entry without falling back or caching.
func (s *Selector) Probe(ctx context.Context, region *domain.Region, catalog domain.Catalog) []ProbeResult {
	results := make([]ProbeResult, len(catalog))
	for i, entry := range catalog {
		results[i].Entry = entry
		res, err := s.evaluateEntry(ctx, i, entry, region)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Count = res.count
		if res.found {
			best := res.candidate
			results[i].Best = &best
		}
	}
	return results
}

func (s *Selector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.remoteTimeout)
}

// remoteError classifies an imagery service failure as a render error.
func remoteError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out: %w", domain.ErrRender, op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRender, op, err)
}
