package earthengine

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.ngs.io/satellite-image-api/internal/adapter/imagery"
	"go.ngs.io/satellite-image-api/internal/domain"
)

var _ imagery.Service = (*Client)(nil)

// value is one node of an Earth Engine expression graph.
type value map[string]any

func constant(v any) value { return value{"constantValue": v} }

func ref(key string) value { return value{"valueReference": key} }

func invoke(function string, args map[string]value) value {
	return value{"functionInvocationValue": map[string]any{
		"functionName": function,
		"arguments":    args,
	}}
}

type expression struct {
	Result string           `json:"result"`
	Values map[string]value `json:"values"`
}

type visRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type visualizationOptions struct {
	Ranges []visRange `json:"ranges"`
}

type thumbnailBody struct {
	Expression           expression            `json:"expression"`
	FileFormat           string                `json:"fileFormat"`
	VisualizationOptions *visualizationOptions `json:"visualizationOptions,omitempty"`
}

type thumbnailResponse struct {
	Name string `json:"name"`
}

// buildExpression produces:
//
//	img = Image.load(id).select(bands)
//	img.updateMask(img.select(mask.band).gt(mask.above)).clipToBoundsAndScale(region, scale)
func buildExpression(c domain.Composite, region *domain.Region, scale float64) expression {
	return expression{
		Result: "4",
		Values: map[string]value{
			"0": invoke("Image.load", map[string]value{
				"id": constant(c.ImageID),
			}),
			"1": invoke("Image.select", map[string]value{
				"input":         ref("0"),
				"bandSelectors": constant(c.Bands.Slice()),
			}),
			"2": invoke("Image.gt", map[string]value{
				"image1": invoke("Image.select", map[string]value{
					"input":         ref("1"),
					"bandSelectors": constant([]string{c.Mask.Band}),
				}),
				"image2": invoke("Image.constant", map[string]value{
					"value": constant(c.Mask.Above),
				}),
			}),
			"3": invoke("Image.updateMask", map[string]value{
				"image": ref("1"),
				"mask":  ref("2"),
			}),
			"4": invoke("Image.clipToBoundsAndScale", map[string]value{
				"input": ref("3"),
				"geometry": invoke("GeometryConstructors.Polygon", map[string]value{
					"coordinates": constant(region.Polygon()),
					"evenOdd":     constant(true),
				}),
				"scale": constant(scale),
			}),
		},
	}
}

// Thumbnail implements imagery.Service using thumbnails.create. The returned
// URL serves the rendered image via getPixels.
func (c *Client) Thumbnail(ctx context.Context, req imagery.ThumbnailRequest) (string, error) {
	if req.Region == nil {
		return "", fmt.Errorf("earthengine: thumbnail region is required")
	}
	body := thumbnailBody{
		Expression: buildExpression(req.Composite, req.Region, req.Scale),
		FileFormat: strings.ToUpper(req.Format),
	}
	if req.HasVisRange() {
		body.VisualizationOptions = &visualizationOptions{
			Ranges: []visRange{{Min: req.VisMin, Max: req.VisMax}},
		}
	}

	var resp thumbnailResponse
	path := fmt.Sprintf("/v1/projects/%s/thumbnails", c.project)
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", fmt.Errorf("earthengine: thumbnail response has no name")
	}
	return fmt.Sprintf("%s/v1/%s:getPixels", c.baseURL, resp.Name), nil
}
