// Package geocode resolves coordinates into human-readable addresses
// through a Nominatim-compatible reverse geocoding endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/service"
)

const (
	// DefaultBaseURL points at the public OSM Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	requestTimeout = 10 * time.Second
)

// Compile-time check.
var _ service.Geocoder = (*NominatimClient)(nil)

// NominatimClient reverse-geocodes via HTTP.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// NewNominatimClient creates a client. Nominatim's usage policy requires
// an identifying user agent.
func NewNominatimClient(baseURL, userAgent string) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &NominatimClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Amenity string `json:"amenity"`
		Shop    string `json:"shop"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		Country string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// ReverseGeocode looks up the address at the given coordinates.
func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lng float64) (*service.GeocodeResult, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("geocode request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, common.ErrRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if body.Error != "" || body.DisplayName == "" {
		return nil, fmt.Errorf("%w: no address at %.4f,%.4f", common.ErrLocationUnavailable, lat, lng)
	}

	result := &service.GeocodeResult{
		Address: body.DisplayName,
		Country: body.Address.Country,
	}
	switch {
	case body.Address.City != "":
		result.City = body.Address.City
	case body.Address.Town != "":
		result.City = body.Address.Town
	default:
		result.City = body.Address.Village
	}
	switch {
	case body.Address.Amenity != "":
		result.PlaceName = body.Address.Amenity
	case body.Address.Shop != "":
		result.PlaceName = body.Address.Shop
	}
	return result, nil
}
