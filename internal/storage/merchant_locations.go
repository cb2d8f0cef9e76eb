package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

// GetMerchantLocation retrieves a learned merchant location by its
// normalized merchant key.
func (s *SQLiteStorage) GetMerchantLocation(ctx context.Context, userID, key string) (*model.MerchantLocation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	var (
		loc         model.MerchantLocation
		samplesJSON sql.NullString
		lastVisit   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, key, canonical_name, lat, lng, samples_json, visit_count, last_visit
		FROM merchant_locations
		WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&loc.UserID, &loc.Key, &loc.CanonicalName, &loc.Lat,
		&loc.Lng, &samplesJSON, &loc.VisitCount, &lastVisit)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: merchant location", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant location: %w", err)
	}

	if samplesJSON.Valid && samplesJSON.String != "" {
		if err := json.Unmarshal([]byte(samplesJSON.String), &loc.Samples); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location samples: %w", err)
		}
	}
	if lastVisit.Valid {
		loc.LastVisit = lastVisit.Time
	}
	return &loc, nil
}

// SaveMerchantLocation upserts a merchant location by (user, key).
func (s *SQLiteStorage) SaveMerchantLocation(ctx context.Context, loc *model.MerchantLocation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if loc == nil {
		return fmt.Errorf("%w: merchant location", ErrNilParameter)
	}
	if loc.UserID == "" || loc.Key == "" {
		return fmt.Errorf("%w: merchant location requires user id and key", ErrInvalidPattern)
	}

	samplesJSON, err := json.Marshal(loc.Samples)
	if err != nil {
		return fmt.Errorf("failed to marshal location samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merchant_locations
			(user_id, key, canonical_name, lat, lng, samples_json, visit_count, last_visit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			lat = excluded.lat,
			lng = excluded.lng,
			samples_json = excluded.samples_json,
			visit_count = excluded.visit_count,
			last_visit = excluded.last_visit
	`, loc.UserID, loc.Key, loc.CanonicalName, loc.Lat, loc.Lng,
		string(samplesJSON), loc.VisitCount, loc.LastVisit)
	if err != nil {
		return fmt.Errorf("failed to save merchant location: %w", err)
	}
	return nil
}

// RecordLocationSample stores one device-reported background fix.
func (s *SQLiteStorage) RecordLocationSample(ctx context.Context, sample *model.LocationSample) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sample == nil {
		return fmt.Errorf("%w: location sample", ErrNilParameter)
	}
	if err := validateString(sample.UserID, "userID"); err != nil {
		return err
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO location_samples (user_id, lat, lng, recorded_at)
		VALUES (?, ?, ?, ?)
	`, sample.UserID, sample.Lat, sample.Lng, sample.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record location sample: %w", err)
	}
	return nil
}

// AverageLocationWithin averages the user's background samples inside the
// window around the given instant. Returns common.ErrNotFound when no
// samples fall inside the window.
func (s *SQLiteStorage) AverageLocationWithin(ctx context.Context, userID string, at time.Time, window time.Duration) (*service.AveragedLocation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var (
		avgLat, avgLng sql.NullFloat64
		count          int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(lat), AVG(lng), COUNT(*)
		FROM location_samples
		WHERE user_id = ? AND recorded_at BETWEEN ? AND ?
	`, userID, at.Add(-window), at.Add(window)).Scan(&avgLat, &avgLng, &count)
	if err != nil {
		return nil, fmt.Errorf("failed to average location samples: %w", err)
	}
	if count == 0 || !avgLat.Valid {
		return nil, fmt.Errorf("%w: no location samples in window", common.ErrNotFound)
	}

	return &service.AveragedLocation{
		Lat:         avgLat.Float64,
		Lng:         avgLng.Float64,
		SampleCount: count,
	}, nil
}
