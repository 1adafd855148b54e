package memory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
)

// fixtureHeader is the required header of a fixtures CSV file.
var fixtureHeader = []string{
	"collection", "id", "start_time", "cloud_attribute", "cloud_value",
	"bands", "west", "south", "east", "north", "raster",
}

// Fixture is one image served by the in-memory service.
type Fixture struct {
	Image     imagery.Image
	Footprint orb.Bound
	// Raster is an optional path to an 8-bit RGB(A) image covering Footprint.
	Raster string
}

// LoadFixtures reads image fixtures from a CSV file. Raster paths are resolved
// relative to the CSV file's directory.
func LoadFixtures(path string) ([]Fixture, error) {
	//nolint:gosec // G304: path comes from process configuration.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return readFixtures(file, filepath.Dir(path))
}

func readFixtures(r io.Reader, baseDir string) ([]Fixture, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Validate header.
	if len(header) != len(fixtureHeader) {
		return nil, fmt.Errorf("invalid CSV header: expected %v, got %v", fixtureHeader, header)
	}
	for i, h := range header {
		if strings.TrimSpace(h) != fixtureHeader[i] {
			return nil, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, fixtureHeader[i], h)
		}
	}

	fixtures := make([]Fixture, 0)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		f, err := parseFixture(record, baseDir)
		if err != nil {
			return nil, fmt.Errorf("fixtures line %d: %w", line, err)
		}
		fixtures = append(fixtures, f)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixtures found in CSV")
	}
	return fixtures, nil
}

func parseFixture(record []string, baseDir string) (Fixture, error) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	collection, id := record[0], record[1]
	if collection == "" || id == "" {
		return Fixture{}, fmt.Errorf("collection and id are required")
	}

	start, err := time.Parse(time.RFC3339, record[2])
	if err != nil {
		return Fixture{}, fmt.Errorf("invalid start_time for %s: %w", id, err)
	}

	props := map[string]float64{}
	if record[3] != "" {
		cloud, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return Fixture{}, fmt.Errorf("invalid cloud_value for %s: %w", id, err)
		}
		props[record[3]] = cloud
	}

	var bands []string
	for _, b := range strings.Split(record[5], ";") {
		if b = strings.TrimSpace(b); b != "" {
			bands = append(bands, b)
		}
	}

	var edges [4]float64
	for i := range edges {
		v, err := strconv.ParseFloat(record[6+i], 64)
		if err != nil {
			return Fixture{}, fmt.Errorf("invalid %s for %s: %w", fixtureHeader[6+i], id, err)
		}
		edges[i] = v
	}
	west, south, east, north := edges[0], edges[1], edges[2], edges[3]
	if west >= east || south >= north {
		return Fixture{}, fmt.Errorf("invalid footprint for %s: west/south must be below east/north", id)
	}

	raster := record[10]
	if raster != "" && !filepath.IsAbs(raster) {
		raster = filepath.Join(baseDir, raster)
	}

	return Fixture{
		Image: imagery.Image{
			ID:         id,
			Collection: collection,
			StartTime:  start,
			Properties: props,
			Bands:      bands,
		},
		Footprint: orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}},
		Raster:    raster,
	}, nil
}
