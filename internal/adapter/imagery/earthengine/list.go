package earthengine

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
)

type band struct {
	ID string `json:"id"`
}

type eeImage struct {
	Name       string         `json:"name"`
	ID         string         `json:"id"`
	StartTime  string         `json:"startTime"`
	Properties map[string]any `json:"properties"`
	Bands      []band         `json:"bands"`
}

type listImagesResponse struct {
	Images        []eeImage `json:"images"`
	NextPageToken string    `json:"nextPageToken"`
}

// ListImages implements imagery.Service using assets.listImages. Spatial,
// temporal and property filtering happen server side; pages are followed until
// exhausted or MaxImages is reached.
func (c *Client) ListImages(ctx context.Context, q imagery.Query) ([]imagery.Image, error) {
	if q.Region == nil {
		return nil, fmt.Errorf("earthengine: query region is required")
	}
	region, err := q.Region.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("earthengine: encode region: %w", err)
	}

	params := map[string]string{
		"startTime": q.Start.UTC().Format(time.RFC3339),
		"endTime":   q.End.UTC().Format(time.RFC3339),
		"region":    string(region),
		"filter":    filterExpr(q.Filter),
		"pageSize":  strconv.Itoa(c.pageSize),
	}

	var images []imagery.Image
	for {
		var page listImagesResponse
		if err := c.do(ctx, http.MethodGet, c.assetPath(q.Collection)+":listImages", params, nil, &page); err != nil {
			return nil, err
		}
		for _, img := range page.Images {
			images = append(images, c.toImage(q.Collection, img))
		}
		if page.NextPageToken == "" || len(images) >= c.maxImages {
			break
		}
		params["pageToken"] = page.NextPageToken
	}
	if len(images) > c.maxImages {
		images = images[:c.maxImages]
	}
	return images, nil
}

// BandNames implements imagery.Service using assets.get.
func (c *Client) BandNames(ctx context.Context, imageID string) ([]string, error) {
	var img eeImage
	if err := c.do(ctx, http.MethodGet, c.assetPath(imageID), nil, nil, &img); err != nil {
		return nil, err
	}
	names := make([]string, len(img.Bands))
	for i, b := range img.Bands {
		names[i] = b.ID
	}
	return names, nil
}

func (c *Client) toImage(collection string, img eeImage) imagery.Image {
	id := img.ID
	if id == "" {
		id = strings.TrimPrefix(img.Name, "projects/"+c.assetProject+"/assets/")
	}

	props := make(map[string]float64, len(img.Properties))
	for k, v := range img.Properties {
		if f, ok := v.(float64); ok {
			props[k] = f
		}
	}

	var bands []string
	for _, b := range img.Bands {
		bands = append(bands, b.ID)
	}

	// A malformed timestamp leaves the zero time; it is informational only.
	start, _ := time.Parse(time.RFC3339, img.StartTime)

	return imagery.Image{
		ID:         id,
		Collection: collection,
		StartTime:  start,
		Properties: props,
		Bands:      bands,
	}
}

func filterExpr(f imagery.PropertyFilter) string {
	if f.Property == "" {
		return ""
	}
	return f.Property + " < " + strconv.FormatFloat(f.Below, 'g', -1, 64)
}
