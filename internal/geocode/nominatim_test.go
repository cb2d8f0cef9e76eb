package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/common"
)

func TestReverseGeocodeMapsResponse(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"display_name": "Dominos, 80 Feet Road, Koramangala, Bengaluru, India",
			"address": {
				"amenity": "Dominos",
				"city": "Bengaluru",
				"country": "India"
			}
		}`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "finsift-test")
	result, err := client.ReverseGeocode(context.Background(), 12.9716, 77.5946)
	require.NoError(t, err)

	assert.Equal(t, "finsift-test", gotUserAgent)
	assert.Equal(t, "Dominos", result.PlaceName)
	assert.Equal(t, "Bengaluru", result.City)
	assert.Equal(t, "India", result.Country)
	assert.Contains(t, result.Address, "Koramangala")
}

func TestReverseGeocodeTownFallsBackToCity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"display_name": "Cafe, Main Street, Manali, India",
			"address": {"shop": "Cafe", "town": "Manali"}
		}`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "finsift-test")
	result, err := client.ReverseGeocode(context.Background(), 32.2432, 77.1892)
	require.NoError(t, err)
	assert.Equal(t, "Cafe", result.PlaceName)
	assert.Equal(t, "Manali", result.City)
}

func TestReverseGeocodeRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "finsift-test")
	_, err := client.ReverseGeocode(context.Background(), 12.9716, 77.5946)
	assert.ErrorIs(t, err, common.ErrRateLimit)
}

func TestReverseGeocodeNoAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "finsift-test")
	_, err := client.ReverseGeocode(context.Background(), 0, 0)
	assert.ErrorIs(t, err, common.ErrLocationUnavailable)
}
