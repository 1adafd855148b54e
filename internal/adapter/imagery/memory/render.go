package memory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
)

// maxDimension caps the longer side of a rendered thumbnail.
const maxDimension = 1024

// Pixels renders a previously requested thumbnail as PNG.
func (s *Service) Pixels(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req, ok := s.job(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", imagery.ErrUnknownThumbnail, name)
	}
	f, ok := s.fixture(req.Composite.ImageID)
	if !ok {
		return nil, fmt.Errorf("memory: image %s not found", req.Composite.ImageID)
	}
	if f.Raster == "" {
		return nil, fmt.Errorf("memory: image %s has no raster", f.Image.ID)
	}

	src, err := imaging.Open(f.Raster)
	if err != nil {
		return nil, fmt.Errorf("memory: open raster: %w", err)
	}

	out := render(src, f.Footprint, req)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("memory: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// render crops src (georeferenced to footprint) to the region bounds, scales
// it to req.Scale metres per pixel and applies the validity mask. Output
// pixels outside the footprint or failing the mask are transparent.
func render(src image.Image, footprint orb.Bound, req imagery.ThumbnailRequest) *image.NRGBA {
	region := req.Region.Bound()
	w, h := outputSize(region, req.Scale)
	canvas := imaging.New(w, h, color.NRGBA{})

	inter, ok := intersect(footprint, region)
	if !ok {
		return canvas
	}

	// Source pixel rectangle covering the intersection.
	sb := src.Bounds()
	fx := float64(sb.Dx()) / (footprint.Max[0] - footprint.Min[0])
	fy := float64(sb.Dy()) / (footprint.Max[1] - footprint.Min[1])
	srcRect := image.Rect(
		sb.Min.X+int(math.Floor((inter.Min[0]-footprint.Min[0])*fx)),
		sb.Min.Y+int(math.Floor((footprint.Max[1]-inter.Max[1])*fy)),
		sb.Min.X+int(math.Ceil((inter.Max[0]-footprint.Min[0])*fx)),
		sb.Min.Y+int(math.Ceil((footprint.Max[1]-inter.Min[1])*fy)),
	).Intersect(sb)
	if srcRect.Empty() {
		return canvas
	}

	// Destination rectangle of the intersection inside the canvas.
	rx := float64(w) / (region.Max[0] - region.Min[0])
	ry := float64(h) / (region.Max[1] - region.Min[1])
	x0 := int(math.Floor((inter.Min[0] - region.Min[0]) * rx))
	y0 := int(math.Floor((region.Max[1] - inter.Max[1]) * ry))
	x1 := int(math.Ceil((inter.Max[0] - region.Min[0]) * rx))
	y1 := int(math.Ceil((region.Max[1] - inter.Min[1]) * ry))
	dw, dh := max(x1-x0, 1), max(y1-y0, 1)

	patch := imaging.Resize(imaging.Crop(src, srcRect), dw, dh, imaging.Linear)
	canvas = imaging.Paste(canvas, patch, image.Pt(x0, y0))

	applyMask(canvas, req.Composite.Mask.Above)
	return canvas
}

// applyMask clears pixels whose red value does not exceed above. Fixture
// rasters carry the composite's red band in their red channel.
func applyMask(img *image.NRGBA, above float64) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			if float64(img.Pix[i]) <= above {
				img.Pix[i+3] = 0
			}
		}
	}
}

// outputSize converts region bounds to pixels at scale metres per pixel.
func outputSize(region orb.Bound, scale float64) (int, int) {
	midLat := (region.Min[1] + region.Max[1]) / 2
	midLon := (region.Min[0] + region.Max[0]) / 2
	widthM := geo.Distance(orb.Point{region.Min[0], midLat}, orb.Point{region.Max[0], midLat})
	heightM := geo.Distance(orb.Point{midLon, region.Min[1]}, orb.Point{midLon, region.Max[1]})

	w := math.Ceil(widthM / scale)
	h := math.Ceil(heightM / scale)
	if longest := math.Max(w, h); longest > maxDimension {
		w = math.Round(w * maxDimension / longest)
		h = math.Round(h * maxDimension / longest)
	}
	return max(int(w), 1), max(int(h), 1)
}

func intersect(a, b orb.Bound) (orb.Bound, bool) {
	out := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	if out.Min[0] >= out.Max[0] || out.Min[1] >= out.Max[1] {
		return orb.Bound{}, false
	}
	return out, true
}
