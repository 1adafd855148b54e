// Package earthengine implements imagery.Service on the Earth Engine REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the public Earth Engine REST endpoint.
	DefaultBaseURL = "https://earthengine.googleapis.com"

	// DefaultAssetProject hosts the public data catalog.
	DefaultAssetProject = "earthengine-public"

	defaultPageSize  = 1000
	defaultMaxImages = 5000

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Project is the Cloud project that owns thumbnails (required).
	Project string
	// AssetProject owns the listed collections; defaults to DefaultAssetProject.
	AssetProject string
	// PageSize is the listImages page size.
	PageSize int
	// MaxImages caps how many images are listed per collection.
	MaxImages int
}

// Client talks to Earth Engine with an already authenticated HTTP client.
type Client struct {
	http         *http.Client
	baseURL      string
	project      string
	assetProject string
	pageSize     int
	maxImages    int
}

// New creates a Client. httpClient must attach credentials to requests; it is
// not modified.
func New(httpClient *http.Client, cfg Config) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("earthengine: http client is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("earthengine: project is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AssetProject == "" {
		cfg.AssetProject = DefaultAssetProject
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = defaultMaxImages
	}

	instrumented := *httpClient
	instrumented.Transport = otelhttp.NewTransport(httpClient.Transport)

	return &Client{
		http:         &instrumented,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		project:      cfg.Project,
		assetProject: cfg.AssetProject,
		pageSize:     cfg.PageSize,
		maxImages:    cfg.MaxImages,
	}, nil
}

// apiError is the error envelope returned by Google APIs.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// do sends a request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("earthengine: encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("earthengine: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			if v != "" {
				q.Set(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("earthengine: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("earthengine request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("earthengine: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return fmt.Errorf("earthengine: HTTP %d (failed to read body: %v)", resp.StatusCode, readErr)
	}
	var e apiError
	if err := json.Unmarshal(b, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("earthengine: HTTP %d %s: %s", resp.StatusCode, e.Error.Status, e.Error.Message)
	}
	return fmt.Errorf("earthengine: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// assetPath returns the REST path of a public asset.
func (c *Client) assetPath(assetID string) string {
	return fmt.Sprintf("/v1/projects/%s/assets/%s", c.assetProject, assetID)
}
