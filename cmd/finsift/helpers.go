package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/engine"
	"github.com/finsift/finsift/internal/notify"
	"github.com/finsift/finsift/internal/service"
	"github.com/finsift/finsift/internal/storage"
)

// initStorage initializes the storage service with proper path expansion
// and runs migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DefaultDatabasePath()
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initNotifier builds the FCM notifier when credentials are configured,
// nil otherwise. A nil notifier simply disables push delivery.
func initNotifier(ctx context.Context) (service.Notifier, error) {
	credentials := viper.GetString("notify.credentials_file")
	if credentials == "" {
		return nil, nil
	}
	return notify.NewFCMNotifier(ctx, config.ExpandPath(credentials))
}

// initEngine wires storage, notifier, and engine config together.
func initEngine(ctx context.Context) (*engine.Engine, service.Storage, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := initNotifier(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}

	cfg := engine.DefaultConfig()
	if ttl := viper.GetDuration("pending.ttl"); ttl > 0 {
		cfg.PendingTTL = ttl
	}
	if threshold := viper.GetFloat64("pending.auto_create_threshold"); threshold > 0 {
		cfg.AutoCreateThreshold = threshold
	}

	return engine.NewWithConfig(store, notifier, cfg), store, nil
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
