package affiliate

import (
	"context"
	"testing"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	got := DefaultSettings(config.CrawlConfig{DataEndpoint: "http://sink/data"})
	assert.Equal(t, 120, got.CrawlIntervalDuration)
	assert.Equal(t, UnitSeconds, got.CrawlIntervalUnit)
	assert.Equal(t, 120*time.Second, got.Interval())
	assert.Equal(t, "http://sink/data", got.PostCreatorDataEndpoint)
}

func TestSettingsInterval(t *testing.T) {
	tests := []struct {
		duration int
		unit     string
		want     time.Duration
	}{
		{30, UnitSeconds, 30 * time.Second},
		{5, UnitMinutes, 5 * time.Minute},
		{2, UnitHours, 2 * time.Hour},
		{7, "", 7 * time.Second},
	}
	for _, tt := range tests {
		s := Settings{CrawlIntervalDuration: tt.duration, CrawlIntervalUnit: tt.unit}
		assert.Equal(t, tt.want, s.Interval(), "%d %s", tt.duration, tt.unit)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{name: "empty", s: Settings{}},
		{name: "full", s: Settings{
			CreatorIDsEndpoint:       "https://api.example.com/proxy:endpoint/creators",
			PostCreatorDataEndpoint:  "https://api.example.com/data",
			PostCreatorErrorEndpoint: "https://api.example.com/errors",
			APIKeyFormat:             "X-Api-Key",
			APIKeyValue:              "secret",
			CrawlIntervalDuration:    10,
			CrawlIntervalUnit:        UnitMinutes,
		}},
		{name: "bad url", s: Settings{PostCreatorDataEndpoint: "not a url"}, wantErr: true},
		{name: "bad unit", s: Settings{CrawlIntervalUnit: "days"}, wantErr: true},
		{name: "negative interval", s: Settings{CrawlIntervalDuration: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsStoreOverlaysDefaults(t *testing.T) {
	ctx := context.Background()
	defaults := Settings{
		PostCreatorDataEndpoint: "https://default.example.com/data",
		CrawlIntervalDuration:   120,
		CrawlIntervalUnit:       UnitSeconds,
	}
	store := NewSettingsStore(kvstore.NewMemoryStore(), defaults)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	require.NoError(t, store.Save(ctx, Settings{
		PostCreatorErrorEndpoint: "https://mine.example.com/errors",
		CrawlIntervalDuration:    3,
		CrawlIntervalUnit:        UnitHours,
	}))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://default.example.com/data", got.PostCreatorDataEndpoint)
	assert.Equal(t, "https://mine.example.com/errors", got.PostCreatorErrorEndpoint)
	assert.Equal(t, 3*time.Hour, got.Interval())

	require.NoError(t, store.Clear(ctx))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestSettingsStoreSaveRejectsInvalid(t *testing.T) {
	store := NewSettingsStore(kvstore.NewMemoryStore(), Settings{})
	assert.Error(t, store.Save(context.Background(), Settings{CrawlIntervalUnit: "weeks"}))
}
