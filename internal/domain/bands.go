package domain

import (
	"fmt"
	"strings"
)

// surfaceReflectancePrefix marks band names of Landsat Collection 2 Level-2
// style products.
const surfaceReflectancePrefix = "SR_"

// BandConvention identifies the band naming scheme an image follows.
type BandConvention int

const (
	// ConventionDefault uses the catalog entry's own band triple.
	ConventionDefault BandConvention = iota
	// ConventionSurfaceReflectance uses SR_-prefixed band names.
	ConventionSurfaceReflectance
)

// String returns the convention name.
func (c BandConvention) String() string {
	switch c {
	case ConventionSurfaceReflectance:
		return "surface_reflectance"
	default:
		return "default"
	}
}

// Bands returns the RGB triple for this convention, falling back to the
// entry's defaults.
func (c BandConvention) Bands(entry CatalogEntry) RGB {
	if c == ConventionSurfaceReflectance {
		return RGB{Red: "SR_B4", Green: "SR_B3", Blue: "SR_B2"}
	}
	return entry.DefaultBands
}

// DetectConvention inspects the band names present on an image.
func DetectConvention(bandNames []string) BandConvention {
	for _, name := range bandNames {
		if strings.HasPrefix(name, surfaceReflectancePrefix) {
			return ConventionSurfaceReflectance
		}
	}
	return ConventionDefault
}

// ResolveBands picks the red, green and blue bands for an image of the given
// entry. Every band of the resolved triple must be present on the image.
func ResolveBands(entry CatalogEntry, bandNames []string) (RGB, BandConvention, error) {
	convention := DetectConvention(bandNames)
	rgb := convention.Bands(entry)

	present := make(map[string]bool, len(bandNames))
	for _, name := range bandNames {
		present[name] = true
	}
	var missing []string
	for _, b := range rgb.Slice() {
		if !present[b] {
			missing = append(missing, b)
		}
	}
	if len(missing) > 0 {
		return RGB{}, convention, fmt.Errorf("%w: image bands %v lack %s (%s convention)",
			ErrBandResolution, bandNames, strings.Join(missing, ", "), convention)
	}
	return rgb, convention, nil
}

// ValidityMask keeps pixels whose value in Band is strictly greater than Above.
type ValidityMask struct {
	Band  string
	Above float64
}

// Composite is a band-selected, masked view of a single image, ready to render.
type Composite struct {
	ImageID string
	Bands   RGB
	Mask    ValidityMask
}

// ApplyMask selects exactly the resolved bands and masks out pixels whose red
// value is not positive, removing black or white borders at scene edges.
func ApplyMask(imageID string, bands RGB) Composite {
	return Composite{
		ImageID: imageID,
		Bands:   bands,
		Mask:    ValidityMask{Band: bands.Red, Above: 0},
	}
}
