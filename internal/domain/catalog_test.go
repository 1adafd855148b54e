package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if len(c) != 2 {
		t.Fatalf("len = %d, want 2", len(c))
	}
	if c[0].Collection != "COPERNICUS/S2_SR_HARMONIZED" || c[0].CloudAttribute != "CLOUDY_PIXEL_PERCENTAGE" {
		t.Errorf("primary entry = %+v", c[0])
	}
	if c[1].Collection != "LANDSAT/LC09/C02/T1_TOA" || c[1].CloudAttribute != "CLOUD_COVER" {
		t.Errorf("fallback entry = %+v", c[1])
	}
	if c[0].Accepts(20) || !c[0].Accepts(19.99) {
		t.Error("threshold must be strict")
	}
}

func TestCatalogJSONRoundTripKeepsFingerprint(t *testing.T) {
	c := DefaultCatalog()
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	parsed, err := ParseCatalog(b)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if parsed.Fingerprint() != c.Fingerprint() {
		t.Errorf("fingerprint changed: %s vs %s", parsed.Fingerprint(), c.Fingerprint())
	}

	changed := DefaultCatalog()
	changed[0].CloudThreshold = 10
	if changed.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprint should change with the threshold")
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `[
		{"name": "landsat-8-l2", "collection": "LANDSAT/LC08/C02/T1_L2",
		 "start": "2023-01-01", "end": "2023-07-01",
		 "cloud_attribute": "CLOUD_COVER", "cloud_threshold": 30, "sort": "desc",
		 "bands": {"red": "SR_B4", "green": "SR_B3", "blue": "SR_B2"},
		 "vis_min": 7000, "vis_max": 20000}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	e := c[0]
	if e.Order != Descending {
		t.Errorf("order = %v, want desc", e.Order)
	}
	if !e.Start.Equal(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", e.Start)
	}
	if e.VisMax != 20000 {
		t.Errorf("vis_max = %v", e.VisMax)
	}
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"empty", `[]`, "at least one entry"},
		{"bad date", `[{"name":"a","collection":"c","start":"2022/01/01","end":"2023-01-01","cloud_attribute":"X","cloud_threshold":1,"bands":{"red":"r","green":"g","blue":"b"}}]`, "invalid start date"},
		{"inverted range", `[{"name":"a","collection":"c","start":"2023-01-01","end":"2022-01-01","cloud_attribute":"X","cloud_threshold":1,"bands":{"red":"r","green":"g","blue":"b"}}]`, "start must be before end"},
		{"zero threshold", `[{"name":"a","collection":"c","start":"2022-01-01","end":"2023-01-01","cloud_attribute":"X","cloud_threshold":0,"bands":{"red":"r","green":"g","blue":"b"}}]`, "threshold"},
		{"bad sort", `[{"name":"a","collection":"c","start":"2022-01-01","end":"2023-01-01","cloud_attribute":"X","cloud_threshold":1,"sort":"random","bands":{"red":"r","green":"g","blue":"b"}}]`, "unknown sort order"},
		{"missing band", `[{"name":"a","collection":"c","start":"2022-01-01","end":"2023-01-01","cloud_attribute":"X","cloud_threshold":1,"bands":{"red":"r","green":"g"}}]`, "default bands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.json))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
