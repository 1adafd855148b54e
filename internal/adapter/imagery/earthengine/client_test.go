package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.Client(), Config{BaseURL: srv.URL, Project: "demo", PageSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func testRegion(t *testing.T) *domain.Region {
	t.Helper()
	r, err := domain.BuildRegion([][]float64{{-46.6, -23.5}}, 5)
	if err != nil {
		t.Fatalf("BuildRegion: %v", err)
	}
	return r
}

func TestNew_RequiresProject(t *testing.T) {
	if _, err := New(http.DefaultClient, Config{}); err == nil {
		t.Error("expected error without project")
	}
	if _, err := New(nil, Config{Project: "p"}); err == nil {
		t.Error("expected error without http client")
	}
}

func TestListImages_FollowsPagesAndSendsFilters(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		wantPath := "/v1/projects/earthengine-public/assets/COPERNICUS/S2_SR_HARMONIZED:listImages"
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		q := r.URL.Query()
		if got := q.Get("filter"); got != "CLOUDY_PIXEL_PERCENTAGE < 20" {
			t.Errorf("filter = %q", got)
		}
		if got := q.Get("startTime"); got != "2022-01-01T00:00:00Z" {
			t.Errorf("startTime = %q", got)
		}
		if got := q.Get("endTime"); got != "2024-02-01T00:00:00Z" {
			t.Errorf("endTime = %q", got)
		}
		if !strings.HasPrefix(q.Get("region"), `{"type":"Polygon"`) {
			t.Errorf("region = %q", q.Get("region"))
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			_, _ = io.WriteString(w, `{"images":[
				{"name":"projects/earthengine-public/assets/COPERNICUS/S2_SR_HARMONIZED/a","id":"COPERNICUS/S2_SR_HARMONIZED/a",
				 "startTime":"2023-05-01T13:00:00Z","properties":{"CLOUDY_PIXEL_PERCENTAGE":3.5,"SPACECRAFT_NAME":"Sentinel-2A"},
				 "bands":[{"id":"B2"},{"id":"B3"},{"id":"B4"}]}
			],"nextPageToken":"next"}`)
			return
		}
		if q.Get("pageToken") != "next" {
			t.Errorf("pageToken = %q", q.Get("pageToken"))
		}
		_, _ = io.WriteString(w, `{"images":[
			{"name":"projects/earthengine-public/assets/COPERNICUS/S2_SR_HARMONIZED/b","properties":{"CLOUDY_PIXEL_PERCENTAGE":1}}
		]}`)
	})

	entry := domain.DefaultCatalog()[0]
	images, err := c.ListImages(context.Background(), imagery.QueryFor(entry, testRegion(t)))
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(images) != 2 {
		t.Fatalf("len(images) = %d, want 2", len(images))
	}
	if images[0].ID != "COPERNICUS/S2_SR_HARMONIZED/a" {
		t.Errorf("images[0].ID = %q", images[0].ID)
	}
	if v, ok := images[0].Property("CLOUDY_PIXEL_PERCENTAGE"); !ok || v != 3.5 {
		t.Errorf("cloud = %v, %v", v, ok)
	}
	if _, ok := images[0].Property("SPACECRAFT_NAME"); ok {
		t.Error("non-numeric properties should be dropped")
	}
	if len(images[0].Bands) != 3 {
		t.Errorf("bands = %v", images[0].Bands)
	}
	if images[1].ID != "COPERNICUS/S2_SR_HARMONIZED/b" {
		t.Errorf("id derived from name = %q", images[1].ID)
	}
}

func TestListImages_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	images, err := c.ListImages(context.Background(), imagery.QueryFor(domain.DefaultCatalog()[1], testRegion(t)))
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("len(images) = %d, want 0", len(images))
	}
}

func TestBandNames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/earthengine-public/assets/LANDSAT/LC09/C02/T1_TOA/LC09_001" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"bands":[{"id":"B1"},{"id":"B2"},{"id":"B3"},{"id":"B4"}]}`)
	})
	names, err := c.BandNames(context.Background(), "LANDSAT/LC09/C02/T1_TOA/LC09_001")
	if err != nil {
		t.Fatalf("BandNames: %v", err)
	}
	if strings.Join(names, ",") != "B1,B2,B3,B4" {
		t.Errorf("names = %v", names)
	}
}

func TestThumbnail_BuildsExpression(t *testing.T) {
	var body thumbnailBody
	var srvURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/projects/demo/thumbnails" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"name":"projects/demo/thumbnails/abc123"}`)
	})
	srvURL = c.baseURL

	composite := domain.ApplyMask("COPERNICUS/S2_SR_HARMONIZED/a", domain.RGB{Red: "B4", Green: "B3", Blue: "B2"})
	url, err := c.Thumbnail(context.Background(), imagery.ThumbnailRequest{
		Composite: composite,
		Region:    testRegion(t),
		Scale:     20,
		Format:    "png",
	})
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if url != srvURL+"/v1/projects/demo/thumbnails/abc123:getPixels" {
		t.Errorf("url = %s", url)
	}
	if body.FileFormat != "PNG" {
		t.Errorf("fileFormat = %q", body.FileFormat)
	}
	if body.VisualizationOptions != nil {
		t.Errorf("visualizationOptions should be omitted, got %+v", body.VisualizationOptions)
	}
	if body.Expression.Result != "4" || len(body.Expression.Values) != 5 {
		t.Fatalf("expression = %+v", body.Expression)
	}

	raw, _ := json.Marshal(body.Expression)
	for _, want := range []string{
		`"functionName":"Image.load"`,
		`"constantValue":"COPERNICUS/S2_SR_HARMONIZED/a"`,
		`"constantValue":["B4","B3","B2"]`,
		`"functionName":"Image.updateMask"`,
		`"functionName":"Image.clipToBoundsAndScale"`,
		`"constantValue":20`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("expression missing %s: %s", want, raw)
		}
	}
}

func TestThumbnail_VisRange(t *testing.T) {
	var body thumbnailBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = io.WriteString(w, `{"name":"projects/demo/thumbnails/x"}`)
	})
	_, err := c.Thumbnail(context.Background(), imagery.ThumbnailRequest{
		Composite: domain.ApplyMask("id", domain.RGB{Red: "B4", Green: "B3", Blue: "B2"}),
		Region:    testRegion(t),
		Scale:     20,
		Format:    "png",
		VisMin:    0,
		VisMax:    3000,
	})
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if body.VisualizationOptions == nil || body.VisualizationOptions.Ranges[0].Max != 3000 {
		t.Errorf("visualizationOptions = %+v", body.VisualizationOptions)
	}
}

func TestAPIErrorIsSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"Caller does not have permission","status":"PERMISSION_DENIED"}}`)
	})
	_, err := c.BandNames(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Caller does not have permission") || !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v", err)
	}
}

func TestContextCancellationAbortsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.BandNames(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
