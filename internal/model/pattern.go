package model

import "time"

// CorrectionHistoryCap bounds per-preference correction history. Oldest
// entries are dropped first, so stale corrections age out by truncation.
const CorrectionHistoryCap = 20

// Correction records one user override of a parsed value.
type Correction struct {
	From string
	To   string
	Date time.Time
}

// Preference is a learned preferred value with a bounded correction
// history. Confidence is the fraction of retained history entries agreeing
// with the preferred value.
type Preference struct {
	Value      string
	Confidence float64
	History    []Correction
}

// Record appends a correction, truncates to CorrectionHistoryCap (FIFO),
// and recomputes the preferred value as the modal "to" value of the
// retained history.
func (p *Preference) Record(from, to string, at time.Time) {
	p.History = append(p.History, Correction{From: from, To: to, Date: at})
	if len(p.History) > CorrectionHistoryCap {
		p.History = p.History[len(p.History)-CorrectionHistoryCap:]
	}

	counts := make(map[string]int, len(p.History))
	best, bestCount := "", 0
	for _, c := range p.History {
		counts[c.To]++
		if counts[c.To] > bestCount {
			best, bestCount = c.To, counts[c.To]
		}
	}
	p.Value = best
	p.Confidence = float64(bestCount) / float64(len(p.History))
}

// MerchantPattern is a per-user learned mapping from observed merchant
// string variants to a canonical name plus preferred category and payment
// method. Keyed by the normalized merchant string.
type MerchantPattern struct {
	UserID        string
	Key           string // normalized merchant string
	CanonicalName string
	Variations    map[string]int // observed as-parsed strings with occurrence counts
	Category      Preference
	Payment       Preference
	UseCount      int
	LastUpdated   time.Time
}

// RecordVariation increments the occurrence counter for an observed
// as-parsed merchant string. Variations are unbounded but deduplicated by
// exact string.
func (m *MerchantPattern) RecordVariation(observed string) {
	if observed == "" {
		return
	}
	if m.Variations == nil {
		m.Variations = make(map[string]int)
	}
	m.Variations[observed]++
}

// MerchantLocationSampleCap bounds the visit samples retained for the
// running average.
const MerchantLocationSampleCap = 20

// MerchantLocation is a per-user learned merchant position: a running
// average over the most recent visit samples.
type MerchantLocation struct {
	UserID        string
	Key           string // normalized merchant string
	CanonicalName string
	Lat           float64 // running average over Samples
	Lng           float64
	Samples       []GeoPoint
	VisitCount    int
	LastVisit     time.Time
}

// Confidence saturates at 1.0 after 10 visits.
func (m *MerchantLocation) Confidence() float64 {
	conf := float64(m.VisitCount) / 10.0
	if conf > 1.0 {
		return 1.0
	}
	return conf
}

// AddVisit records a GPS-bearing visit, keeping at most
// MerchantLocationSampleCap recent samples and recomputing the average.
func (m *MerchantLocation) AddVisit(gps GeoPoint, at time.Time) {
	m.Samples = append(m.Samples, gps)
	if len(m.Samples) > MerchantLocationSampleCap {
		m.Samples = m.Samples[len(m.Samples)-MerchantLocationSampleCap:]
	}
	var sumLat, sumLng float64
	for _, s := range m.Samples {
		sumLat += s.Lat
		sumLng += s.Lng
	}
	n := float64(len(m.Samples))
	m.Lat = sumLat / n
	m.Lng = sumLng / n
	m.VisitCount++
	m.LastVisit = at
}

// LocationSample is a device-reported background location fix used by the
// background-correlation strategy.
type LocationSample struct {
	UserID     string
	Lat        float64
	Lng        float64
	RecordedAt time.Time
}
