package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/flood-features-etl/internal/domain"
	"github.com/paulmach/orb/geojson"
)

// maxResponseBytes bounds a boundary service response.
const maxResponseBytes = 64 << 20

// Client implements pipeline.RegionProvider against an HTTP boundary service
// that answers GET <base>?<property>=<name> with a GeoJSON feature collection.
type Client struct {
	httpClient *http.Client
	baseURL    string
	property   string
	logger     *slog.Logger
}

// NewClient creates a boundary service client.
func NewClient(baseURL, property string, timeout time.Duration, logger *slog.Logger) *Client {
	if property == "" {
		property = DefaultNameProperty
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  baseURL,
		property: property,
		logger:   logger,
	}
}

func (c *Client) Resolve(ctx context.Context, name string) (domain.Region, error) {
	params := url.Values{c.property: {name}}
	fullURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Region{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Region{}, fmt.Errorf("boundary request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Region{}, &domain.RegionResolutionError{Name: name, Err: domain.ErrRegionNotFound}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Region{}, fmt.Errorf("boundary service error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Region{}, fmt.Errorf("read response: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return domain.Region{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("boundary resolved", "region", name, "features", len(fc.Features), "duration", time.Since(start))
	return selectRegion(fc, c.property, name)
}
