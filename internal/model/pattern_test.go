package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreference_Record(t *testing.T) {
	now := time.Now()

	t.Run("single correction sets preferred value", func(t *testing.T) {
		var p Preference
		p.Record("General Expense", "Food & Dining", now)

		assert.Equal(t, "Food & Dining", p.Value)
		assert.InDelta(t, 1.0, p.Confidence, 0.001)
		assert.Len(t, p.History, 1)
	})

	t.Run("confidence is agreement ratio", func(t *testing.T) {
		var p Preference
		p.Record("General Expense", "Food & Dining", now)
		p.Record("General Expense", "Food & Dining", now)
		p.Record("General Expense", "Groceries", now)

		assert.Equal(t, "Food & Dining", p.Value)
		assert.InDelta(t, 2.0/3.0, p.Confidence, 0.001)
	})

	t.Run("history truncates FIFO at cap", func(t *testing.T) {
		var p Preference
		// Fill the history with one value, then push it out with another.
		for i := 0; i < CorrectionHistoryCap; i++ {
			p.Record("x", "Old", now)
		}
		for i := 0; i < CorrectionHistoryCap; i++ {
			p.Record("x", "New", now)
		}

		require.Len(t, p.History, CorrectionHistoryCap)
		assert.Equal(t, "New", p.Value)
		assert.InDelta(t, 1.0, p.Confidence, 0.001)
	})
}

func TestMerchantLocation_Confidence(t *testing.T) {
	tests := []struct {
		name   string
		visits int
		want   float64
	}{
		{name: "no visits", visits: 0, want: 0},
		{name: "two visits", visits: 2, want: 0.2},
		{name: "five visits", visits: 5, want: 0.5},
		{name: "saturates at ten visits", visits: 10, want: 1.0},
		{name: "stays saturated", visits: 50, want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := MerchantLocation{VisitCount: tt.visits}
			assert.InDelta(t, tt.want, m.Confidence(), 0.001)
		})
	}
}

func TestMerchantLocation_ConfidenceMonotonic(t *testing.T) {
	var m MerchantLocation
	prev := m.Confidence()
	for i := 0; i < 15; i++ {
		m.AddVisit(GeoPoint{Lat: 12.9 + float64(i)*0.001, Lng: 77.6}, time.Now())
		conf := m.Confidence()
		assert.GreaterOrEqual(t, conf, prev, "confidence decreased at visit %d", i+1)
		prev = conf
	}
	assert.InDelta(t, 1.0, m.Confidence(), 0.001)
}

func TestMerchantLocation_AddVisit_SampleCap(t *testing.T) {
	var m MerchantLocation
	for i := 0; i < MerchantLocationSampleCap+10; i++ {
		m.AddVisit(GeoPoint{Lat: float64(i), Lng: 0}, time.Now())
	}

	assert.Len(t, m.Samples, MerchantLocationSampleCap)
	assert.Equal(t, MerchantLocationSampleCap+10, m.VisitCount)
	// Average should reflect only the retained (most recent) samples.
	assert.InDelta(t, 19.5, m.Lat, 0.001)
}

func TestGlobalConfidence(t *testing.T) {
	tests := []struct {
		users int
		want  float64
	}{
		{users: 3, want: 0.85},
		{users: 4, want: 0.9},
		{users: 5, want: 0.95},
		{users: 20, want: 0.95}, // capped
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d users", tt.users), func(t *testing.T) {
			assert.InDelta(t, tt.want, GlobalConfidence(tt.users), 0.001)
		})
	}
}
