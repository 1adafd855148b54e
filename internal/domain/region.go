package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// DefaultBufferKm is the buffer applied around a single point when the client
// does not send one.
const DefaultBufferKm = 5.0

// bufferSegments is the number of vertices used to approximate the buffered
// circle before taking its bounds.
const bufferSegments = 64

// RegionKind distinguishes the two ways a region can be built.
type RegionKind int

const (
	// RegionBufferedPoint is the bounding box of a buffered point.
	RegionBufferedPoint RegionKind = iota
	// RegionPolygon is a client supplied polygon.
	RegionPolygon
)

// String returns the kind name used in logs and responses.
func (k RegionKind) String() string {
	switch k {
	case RegionBufferedPoint:
		return "buffered_point"
	case RegionPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Region is the area of interest used for spatial filtering and rendering.
// It is built once per request and never modified afterwards.
type Region struct {
	kind    RegionKind
	polygon orb.Polygon
	bound   orb.Bound
}

// BuildRegion converts client coordinates into a Region.
//
// A single [lon, lat] pair is buffered by bufferKm kilometres and replaced by
// the bounding box of the buffer. Three or more pairs form a polygon ring,
// closed automatically when the last vertex differs from the first.
func BuildRegion(coordinates [][]float64, bufferKm float64) (*Region, error) {
	if len(coordinates) == 0 {
		return nil, fmt.Errorf("%w: at least one coordinate pair is required", ErrInvalidGeometry)
	}

	points := make([]orb.Point, len(coordinates))
	for i, pair := range coordinates {
		p, err := parsePair(i, pair)
		if err != nil {
			return nil, err
		}
		points[i] = p
	}

	switch {
	case len(points) == 1:
		return bufferedPointRegion(points[0], bufferKm)
	case len(points) == 2:
		return nil, fmt.Errorf("%w: a polygon needs at least 3 vertices, got 2", ErrInvalidGeometry)
	default:
		return polygonRegion(points)
	}
}

func parsePair(index int, pair []float64) (orb.Point, error) {
	if len(pair) != 2 {
		return orb.Point{}, fmt.Errorf("%w: coordinate %d must be [lon, lat], got %d values", ErrInvalidGeometry, index, len(pair))
	}
	lon, lat := pair[0], pair[1]
	if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return orb.Point{}, fmt.Errorf("%w: coordinate %d is not finite", ErrInvalidGeometry, index)
	}
	if lon < -180 || lon > 180 {
		return orb.Point{}, fmt.Errorf("%w: coordinate %d longitude %.6f must be between -180 and 180", ErrInvalidGeometry, index, lon)
	}
	if lat < -90 || lat > 90 {
		return orb.Point{}, fmt.Errorf("%w: coordinate %d latitude %.6f must be between -90 and 90", ErrInvalidGeometry, index, lat)
	}
	return orb.Point{lon, lat}, nil
}

func bufferedPointRegion(center orb.Point, bufferKm float64) (*Region, error) {
	if math.IsNaN(bufferKm) || math.IsInf(bufferKm, 0) || bufferKm <= 0 {
		return nil, fmt.Errorf("%w: buffer_km must be positive, got %v", ErrInvalidGeometry, bufferKm)
	}
	meters := bufferKm * 1000

	// Longitudes are unwrapped around the center so a circle crossing the
	// antimeridian still yields a contiguous box before clamping.
	bound := orb.Bound{Min: center, Max: center}
	for i := 0; i < bufferSegments; i++ {
		bearing := 360.0 * float64(i) / bufferSegments
		p := geo.PointAtBearingAndDistance(center, bearing, meters)
		dLon := p[0] - center[0]
		if dLon > 180 {
			dLon -= 360
		} else if dLon < -180 {
			dLon += 360
		}
		bound = bound.Extend(orb.Point{center[0] + dLon, p[1]})
	}

	bound.Min[0] = math.Max(bound.Min[0], -180)
	bound.Max[0] = math.Min(bound.Max[0], 180)
	bound.Min[1] = math.Max(bound.Min[1], -90)
	bound.Max[1] = math.Min(bound.Max[1], 90)

	return &Region{
		kind:    RegionBufferedPoint,
		polygon: bound.ToPolygon(),
		bound:   bound,
	}, nil
}

func polygonRegion(points []orb.Point) (*Region, error) {
	ring := make(orb.Ring, 0, len(points)+1)
	ring = append(ring, points...)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}

	distinct := make(map[orb.Point]struct{}, len(ring))
	for _, p := range ring {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, fmt.Errorf("%w: polygon needs at least 3 distinct vertices", ErrInvalidGeometry)
	}

	polygon := orb.Polygon{ring}
	if planar.Area(polygon) == 0 {
		return nil, fmt.Errorf("%w: polygon vertices are collinear", ErrInvalidGeometry)
	}
	return &Region{
		kind:    RegionPolygon,
		polygon: polygon,
		bound:   polygon.Bound(),
	}, nil
}

// Kind reports how the region was built.
func (r *Region) Kind() RegionKind { return r.kind }

// Polygon returns the region outline. The returned value must not be modified.
func (r *Region) Polygon() orb.Polygon { return r.polygon }

// Bound returns the axis-aligned bounding box of the region.
func (r *Region) Bound() orb.Bound { return r.bound }

// Contains reports whether p lies inside the region or on its boundary.
func (r *Region) Contains(p orb.Point) bool {
	if !r.bound.Contains(p) {
		return false
	}
	if r.kind == RegionBufferedPoint {
		return true
	}
	return planar.PolygonContains(r.polygon, p)
}

// AreaM2 returns the geodesic area of the region in square metres.
func (r *Region) AreaM2() float64 {
	return math.Abs(geo.Area(r.polygon))
}

// GeoJSON encodes the region outline as a GeoJSON Polygon geometry.
func (r *Region) GeoJSON() ([]byte, error) {
	return geojson.NewGeometry(r.polygon).MarshalJSON()
}

// Key returns a stable textual form of the region, suitable for cache keys.
func (r *Region) Key() string {
	var b strings.Builder
	b.WriteString(r.kind.String())
	for _, p := range r.polygon[0] {
		b.WriteByte(';')
		b.WriteString(strconv.FormatFloat(p[0], 'f', 7, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p[1], 'f', 7, 64))
	}
	return b.String()
}
