package geocode

import (
	"context"
	"fmt"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/service"
)

// MockGeocoder returns canned results for tests, keyed by "lat,lng"
// formatted to four decimal places.
type MockGeocoder struct {
	Results map[string]*service.GeocodeResult
	Calls   int
}

// NewMockGeocoder creates an empty mock.
func NewMockGeocoder() *MockGeocoder {
	return &MockGeocoder{Results: make(map[string]*service.GeocodeResult)}
}

// Add registers a canned result for the coordinates.
func (m *MockGeocoder) Add(lat, lng float64, result *service.GeocodeResult) {
	m.Results[mockKey(lat, lng)] = result
}

// ReverseGeocode returns the canned result or common.ErrLocationUnavailable.
func (m *MockGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (*service.GeocodeResult, error) {
	m.Calls++
	if r, ok := m.Results[mockKey(lat, lng)]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: no mock result at %.4f,%.4f", common.ErrLocationUnavailable, lat, lng)
}

func mockKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}
