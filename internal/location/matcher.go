// Package location attaches geographic locations to parsed transactions
// using a strict priority order of strategies, and learns merchant and
// email-pattern locations from confirmed transactions.
package location

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/learn"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

// Strategy confidence floors and fixed scores.
const (
	gpsConfidence           = 0.9 // VERY_HIGH: literal coordinates in the message
	merchantHistoryMinimum  = 0.5 // MEDIUM: learned merchant location floor
	merchantHistoryMinVisit = 2
	backgroundMinimum       = 0.4 // MINIMUM: averaged background samples floor
	textHintConfidence      = 0.3
)

// BackgroundWindow is how far around the transaction timestamp background
// samples are averaged.
const BackgroundWindow = 15 * time.Minute

// Request carries everything the matcher may consult.
type Request struct {
	UserID    string
	Timestamp time.Time
	Merchant  string
	Sender    string
	RawText   string
	GPS       *model.GeoPoint // already parsed from the message, if any
}

// Matcher resolves transaction locations. All lookups are best-effort:
// storage errors skip to the next strategy rather than failing the
// pipeline.
type Matcher struct {
	storage service.Storage
}

// NewMatcher creates a location matcher backed by the given storage.
func NewMatcher(storage service.Storage) *Matcher {
	return &Matcher{storage: storage}
}

// Resolve tries the five strategies in strict priority order and returns
// the first success, or nil when no strategy yields a location.
func (m *Matcher) Resolve(ctx context.Context, req Request) (*model.Location, error) {
	if loc := m.fromParsedGPS(req); loc != nil {
		return loc, nil
	}
	if loc := m.fromMerchantHistory(ctx, req); loc != nil {
		return loc, nil
	}
	if loc := m.fromBackgroundSamples(ctx, req); loc != nil {
		return loc, nil
	}
	if loc := m.fromEmailPatterns(ctx, req); loc != nil {
		return loc, nil
	}
	if loc := m.fromTextHint(req); loc != nil {
		return loc, nil
	}
	return nil, nil
}

// Strategy 1: literal coordinates parsed out of the message.
func (m *Matcher) fromParsedGPS(req Request) *model.Location {
	if req.GPS == nil {
		return nil
	}
	return &model.Location{
		Lat:        req.GPS.Lat,
		Lng:        req.GPS.Lng,
		Confidence: gpsConfidence,
		Source:     model.LocationFromGPS,
	}
}

// Strategy 2: learned merchant location, only once it has enough visits
// and confidence.
func (m *Matcher) fromMerchantHistory(ctx context.Context, req Request) *model.Location {
	key := learn.NormalizeMerchant(req.Merchant)
	if key == "" {
		return nil
	}
	loc, err := m.storage.GetMerchantLocation(ctx, req.UserID, key)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			common.LogWarn("merchant location lookup failed", common.Fields{"user": req.UserID, "error": err})
		}
		return nil
	}
	if loc.VisitCount < merchantHistoryMinVisit || loc.Confidence() < merchantHistoryMinimum {
		return nil
	}
	return &model.Location{
		Lat:        loc.Lat,
		Lng:        loc.Lng,
		PlaceName:  loc.CanonicalName,
		Confidence: loc.Confidence(),
		Source:     model.LocationFromMerchantHistory,
	}
}

// Strategy 3: average of the user's background location samples within
// the window around the transaction timestamp.
func (m *Matcher) fromBackgroundSamples(ctx context.Context, req Request) *model.Location {
	avg, err := m.storage.AverageLocationWithin(ctx, req.UserID, req.Timestamp, BackgroundWindow)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			common.LogWarn("background location lookup failed", common.Fields{"user": req.UserID, "error": err})
		}
		return nil
	}
	if avg == nil || avg.Confidence() < backgroundMinimum {
		return nil
	}
	return &model.Location{
		Lat:        avg.Lat,
		Lng:        avg.Lng,
		Confidence: avg.Confidence(),
		Source:     model.LocationFromBackground,
	}
}

// Strategy 4: regex patterns previously learned for this sender/merchant,
// tested against the raw email text. Every tested pattern's attempt
// counter advances; a match also advances its success counter.
func (m *Matcher) fromEmailPatterns(ctx context.Context, req Request) *model.Location {
	if req.Sender == "" || req.RawText == "" {
		return nil
	}
	patterns, err := m.storage.GetEmailLocationPatterns(ctx, req.UserID, req.Sender)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			common.LogWarn("email location pattern lookup failed", common.Fields{"user": req.UserID, "error": err})
		}
		return nil
	}

	merchantKey := learn.NormalizeMerchant(req.Merchant)
	var matched *model.Location
	for i := range patterns {
		p := &patterns[i]
		if p.Merchant != "" && learn.NormalizeMerchant(p.Merchant) != merchantKey {
			continue
		}
		re, compileErr := regexp.Compile(p.Pattern)
		if compileErr != nil {
			continue
		}

		p.Attempts++
		if matched == nil && re.MatchString(req.RawText) {
			p.Successes++
			p.LastMatched = time.Now()
			loc := p.Location
			loc.Confidence = p.Confidence()
			loc.Source = model.LocationFromEmailPattern
			matched = &loc
		}
		if saveErr := m.storage.SaveEmailLocationPattern(ctx, p); saveErr != nil {
			common.LogWarn("failed to update email location pattern counters", common.Fields{"pattern": p.ID, "error": saveErr})
		}
	}
	return matched
}

// textHintPattern looks for a capitalized place after "in"/"near", which
// avoids colliding with the "at <merchant>" form.
var textHintPattern = regexp.MustCompile(`\b(?:in|near)\s+([A-Z][a-zA-Z]{2,}(?:\s[A-Z][a-zA-Z]+)?)`)

// Strategy 5: a free-text city/address fragment, flagged for external
// geocoding by the caller.
func (m *Matcher) fromTextHint(req Request) *model.Location {
	hint := ExtractTextHint(req.RawText)
	if hint == "" {
		return nil
	}
	return &model.Location{
		City:           hint,
		PlaceName:      hint,
		Confidence:     textHintConfidence,
		Source:         model.LocationFromTextHint,
		NeedsGeocoding: true,
	}
}

// ExtractTextHint heuristically pulls a city/address fragment from the
// message body. Returns "" when nothing plausible is found.
func ExtractTextHint(text string) string {
	m := textHintPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
