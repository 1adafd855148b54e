// Command catalog-probe reports, for a region, how many images each catalog
// entry offers and which one the selector would take.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/adapter/imagery/earthengine"
	"go.ngs.io/satellite-image-api/internal/adapter/imagery/memory"
	"go.ngs.io/satellite-image-api/internal/config"
	"go.ngs.io/satellite-image-api/internal/domain"
	"go.ngs.io/satellite-image-api/internal/usecase"
)

func main() {
	_ = godotenv.Load(".env")
	config.ConfigureLogging(os.Stderr)

	coords := flag.String("coords", "", `Region as "lon,lat" or a polygon "lon,lat;lon,lat;lon,lat"`)
	bufferKm := flag.Float64("buffer-km", domain.DefaultBufferKm, "Buffer radius in km for a point")
	backend := flag.String("backend", config.GetEnv("IMAGERY_BACKEND", config.BackendEarthEngine), "earthengine or memory")
	fixtures := flag.String("fixtures", os.Getenv("FIXTURES_PATH"), "Image fixtures CSV for the memory backend")
	catalogPath := flag.String("catalog", os.Getenv("CATALOG_PATH"), "Catalog JSON (default: built-in)")
	timeout := flag.Duration("timeout", 60*time.Second, "Timeout per imagery service call")
	flag.Parse()

	if *coords == "" {
		fmt.Fprintln(os.Stderr, "catalog-probe: -coords is required")
		flag.Usage()
		os.Exit(2)
	}

	points, err := parseCoords(*coords)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -coords")
	}
	region, err := domain.BuildRegion(points, *bufferKm)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid region")
	}

	cfg := &config.Config{
		Backend:            *backend,
		FixturesPath:       *fixtures,
		CatalogPath:        *catalogPath,
		EEProject:          os.Getenv("EE_PROJECT"),
		EEBaseURL:          os.Getenv("EE_BASE_URL"),
		ServiceAccountJSON: os.Getenv("SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: config.GetEnv("SERVICE_ACCOUNT_FILE", "service-key.json"),
		RemoteTimeout:      *timeout,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog")
	}

	ctx := context.Background()
	service, err := newService(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise imagery backend")
	}

	selector := usecase.NewSelector(service, usecase.WithRemoteTimeout(cfg.RemoteTimeout))
	results := selector.Probe(ctx, region, catalog)

	fmt.Printf("Region: %s, %.1f km²\n\n", region.Kind(), region.AreaM2()/1e6)
	printResults(os.Stdout, results)

	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}

func newService(ctx context.Context, cfg *config.Config) (imagery.Service, error) {
	if cfg.Backend == config.BackendMemory {
		fixtures, err := memory.LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return nil, err
		}
		return memory.New("http://localhost", fixtures), nil
	}
	httpClient, project, err := cfg.EarthEngineClient(ctx)
	if err != nil {
		return nil, err
	}
	return earthengine.New(httpClient, earthengine.Config{BaseURL: cfg.EEBaseURL, Project: project})
}

// parseCoords parses "lon,lat;lon,lat;..." into coordinate pairs.
func parseCoords(s string) ([][]float64, error) {
	var out [][]float64
	for i, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("coordinate %d: expected lon,lat, got %q", i, pair)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %d: invalid longitude: %w", i, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %d: invalid latitude: %w", i, err)
		}
		out = append(out, []float64{lon, lat})
	}
	if len(out) == 0 {
		return nil, errors.New("no coordinates given")
	}
	return out, nil
}

// printResults writes one row per catalog entry, marking the entry the
// selector would use. The selector stops at the first failing entry, so
// nothing after an error is marked.
func printResults(w io.Writer, results []usecase.ProbeResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPRIORITY\tENTRY\tCOLLECTION\tMATCHES\tBEST IMAGE\tCLOUD")

	decided := false
	for i, r := range results {
		marker := ""
		if !decided && (r.Err != nil || r.Best != nil) {
			decided = true
			if r.Err == nil {
				marker = "*"
			}
		}
		switch {
		case r.Err != nil:
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t-\terror: %v\t-\n", marker, i, r.Entry.Name, r.Entry.Collection, r.Err)
		case r.Best == nil:
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t0\t-\t-\n", marker, i, r.Entry.Name, r.Entry.Collection)
		default:
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%.2f\n", marker, i, r.Entry.Name, r.Entry.Collection, r.Count, r.Best.ImageID, r.Best.Cloud)
		}
	}
	_ = tw.Flush()
}
