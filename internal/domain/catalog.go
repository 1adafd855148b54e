package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// SortOrder is the direction in which candidates are ranked by their cloud
// attribute.
type SortOrder int

const (
	// Ascending ranks the least cloudy image first.
	Ascending SortOrder = iota
	// Descending ranks the most cloudy image first.
	Descending
)

// String returns "asc" or "desc".
func (o SortOrder) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

func parseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown sort order %q", s)
	}
}

// RGB names the bands rendered as the red, green and blue channels.
type RGB struct {
	Red   string `json:"red"`
	Green string `json:"green"`
	Blue  string `json:"blue"`
}

// Slice returns the bands in red, green, blue order.
func (c RGB) Slice() []string {
	return []string{c.Red, c.Green, c.Blue}
}

// CatalogEntry configures one imagery source.
type CatalogEntry struct {
	Name           string
	Collection     string
	Start          time.Time // inclusive
	End            time.Time // exclusive
	CloudAttribute string
	CloudThreshold float64 // candidates must be strictly below
	Order          SortOrder
	DefaultBands   RGB

	// Optional display stretch forwarded to the renderer; ignored when both are zero.
	VisMin float64
	VisMax float64
}

// Accepts reports whether an image with the given cloud attribute value passes
// the entry's quality filter.
func (e CatalogEntry) Accepts(cloud float64) bool {
	return cloud < e.CloudThreshold
}

// Catalog is the ordered list of imagery sources, primary first. It is
// read-only once the process has started.
type Catalog []CatalogEntry

// DefaultCatalog returns Sentinel-2 surface reflectance with a Landsat 9 TOA
// fallback.
func DefaultCatalog() Catalog {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	return Catalog{
		{
			Name:           "sentinel-2",
			Collection:     "COPERNICUS/S2_SR_HARMONIZED",
			Start:          start,
			End:            end,
			CloudAttribute: "CLOUDY_PIXEL_PERCENTAGE",
			CloudThreshold: 20,
			Order:          Ascending,
			DefaultBands:   RGB{Red: "B4", Green: "B3", Blue: "B2"},
		},
		{
			Name:           "landsat-9",
			Collection:     "LANDSAT/LC09/C02/T1_TOA",
			Start:          start,
			End:            end,
			CloudAttribute: "CLOUD_COVER",
			CloudThreshold: 20,
			Order:          Ascending,
			DefaultBands:   RGB{Red: "B4", Green: "B3", Blue: "B2"},
		},
	}
}

// Validate checks that every entry is usable.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("catalog must contain at least one entry")
	}
	seen := make(map[string]bool, len(c))
	for i, e := range c {
		if e.Name == "" {
			return fmt.Errorf("catalog entry %d: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("catalog entry %d: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if e.Collection == "" {
			return fmt.Errorf("catalog entry %s: collection is required", e.Name)
		}
		if e.CloudAttribute == "" {
			return fmt.Errorf("catalog entry %s: cloud attribute is required", e.Name)
		}
		if e.CloudThreshold <= 0 {
			return fmt.Errorf("catalog entry %s: cloud threshold must be positive", e.Name)
		}
		if !e.Start.Before(e.End) {
			return fmt.Errorf("catalog entry %s: start must be before end", e.Name)
		}
		if e.DefaultBands.Red == "" || e.DefaultBands.Green == "" || e.DefaultBands.Blue == "" {
			return fmt.Errorf("catalog entry %s: default bands must name red, green and blue", e.Name)
		}
		if e.VisMax < e.VisMin {
			return fmt.Errorf("catalog entry %s: vis_max must not be below vis_min", e.Name)
		}
	}
	return nil
}

// catalogEntryFile is the on-disk form of a CatalogEntry.
type catalogEntryFile struct {
	Name           string  `json:"name"`
	Collection     string  `json:"collection"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	CloudAttribute string  `json:"cloud_attribute"`
	CloudThreshold float64 `json:"cloud_threshold"`
	Sort           string  `json:"sort,omitempty"`
	Bands          RGB     `json:"bands"`
	VisMin         float64 `json:"vis_min,omitempty"`
	VisMax         float64 `json:"vis_max,omitempty"`
}

func (e CatalogEntry) toFile() catalogEntryFile {
	return catalogEntryFile{
		Name:           e.Name,
		Collection:     e.Collection,
		Start:          e.Start.UTC().Format(dateLayout),
		End:            e.End.UTC().Format(dateLayout),
		CloudAttribute: e.CloudAttribute,
		CloudThreshold: e.CloudThreshold,
		Sort:           e.Order.String(),
		Bands:          e.DefaultBands,
		VisMin:         e.VisMin,
		VisMax:         e.VisMax,
	}
}

func (f catalogEntryFile) toEntry() (CatalogEntry, error) {
	start, err := time.Parse(dateLayout, f.Start)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("catalog entry %s: invalid start date: %w", f.Name, err)
	}
	end, err := time.Parse(dateLayout, f.End)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("catalog entry %s: invalid end date: %w", f.Name, err)
	}
	order, err := parseSortOrder(f.Sort)
	if err != nil {
		return CatalogEntry{}, fmt.Errorf("catalog entry %s: %w", f.Name, err)
	}
	return CatalogEntry{
		Name:           f.Name,
		Collection:     f.Collection,
		Start:          start,
		End:            end,
		CloudAttribute: f.CloudAttribute,
		CloudThreshold: f.CloudThreshold,
		Order:          order,
		DefaultBands:   f.Bands,
		VisMin:         f.VisMin,
		VisMax:         f.VisMax,
	}, nil
}

// ParseCatalog decodes a JSON array of catalog entries and validates it.
func ParseCatalog(data []byte) (Catalog, error) {
	var files []catalogEntryFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	catalog := make(Catalog, 0, len(files))
	for _, f := range files {
		e, err := f.toEntry()
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, e)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// LoadCatalog reads a catalog from a JSON file.
func LoadCatalog(path string) (Catalog, error) {
	//nolint:gosec // G304: path comes from process configuration.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(b)
}

// MarshalJSON encodes the catalog in the same form LoadCatalog reads.
func (c Catalog) MarshalJSON() ([]byte, error) {
	files := make([]catalogEntryFile, len(c))
	for i, e := range c {
		files[i] = e.toFile()
	}
	return json.Marshal(files)
}

// Fingerprint identifies this catalog snapshot. Two catalogs with the same
// entries in the same order share a fingerprint.
func (c Catalog) Fingerprint() string {
	b, err := c.MarshalJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
