package affiliate

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/go-playground/validator/v10"
)

const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

var validate = validator.New()

// Settings mirrors the config scope.
type Settings struct {
	CreatorIDsEndpoint       string `json:"creatorIdsEndpoint,omitempty" validate:"omitempty,url"`
	PostCreatorDataEndpoint  string `json:"postCreatorDataEndpoint,omitempty" validate:"omitempty,url"`
	PostCreatorErrorEndpoint string `json:"postCreatorErrorEndpoint,omitempty" validate:"omitempty,url"`
	APIKeyFormat             string `json:"apiKeyFormat,omitempty" validate:"omitempty,printascii"`
	APIKeyValue              string `json:"apiKeyValue,omitempty"`
	CrawlIntervalDuration    int    `json:"crawlIntervalDuration,omitempty" validate:"omitempty,min=1"`
	CrawlIntervalUnit        string `json:"crawlIntervalUnit,omitempty" validate:"omitempty,oneof=seconds minutes hours"`
}

func (s Settings) Validate() error {
	return validate.Struct(s)
}

// SinkConfig returns the endpoints and header a session publishes with. The
// header is only set when both its name and value are.
func (s Settings) SinkConfig() SinkConfig {
	cfg := SinkConfig{
		DataEndpoint:  s.PostCreatorDataEndpoint,
		ErrorEndpoint: s.PostCreatorErrorEndpoint,
	}
	if s.APIKeyFormat != "" && s.APIKeyValue != "" {
		cfg.AuthHeaderName = s.APIKeyFormat
		cfg.AuthHeaderValue = s.APIKeyValue
	}
	return cfg
}

// Interval is the pause between two auto-crawl cycles.
func (s Settings) Interval() time.Duration {
	n := time.Duration(s.CrawlIntervalDuration)
	switch s.CrawlIntervalUnit {
	case UnitMinutes:
		return n * time.Minute
	case UnitHours:
		return n * time.Hour
	default:
		return n * time.Second
	}
}

func (s Settings) values() map[string]any {
	return map[string]any{
		"creatorIdsEndpoint":       s.CreatorIDsEndpoint,
		"postCreatorDataEndpoint":  s.PostCreatorDataEndpoint,
		"postCreatorErrorEndpoint": s.PostCreatorErrorEndpoint,
		"apiKeyFormat":             s.APIKeyFormat,
		"apiKeyValue":              s.APIKeyValue,
		"crawlIntervalDuration":    s.CrawlIntervalDuration,
		"crawlIntervalUnit":        s.CrawlIntervalUnit,
	}
}

// DefaultSettings builds the fallback settings from the environment.
func DefaultSettings(cfg config.CrawlConfig) Settings {
	seconds := int(cfg.DefaultInterval / time.Second)
	if seconds <= 0 {
		seconds = 120
	}
	return Settings{
		CreatorIDsEndpoint:       cfg.CreatorIDsEndpoint,
		PostCreatorDataEndpoint:  cfg.DataEndpoint,
		PostCreatorErrorEndpoint: cfg.ErrorEndpoint,
		APIKeyFormat:             cfg.AuthHeaderName,
		APIKeyValue:              cfg.AuthHeaderValue,
		CrawlIntervalDuration:    seconds,
		CrawlIntervalUnit:        UnitSeconds,
	}
}

// SettingsStore reads and writes the config scope.
type SettingsStore struct {
	store    kvstore.Store
	defaults Settings
}

func NewSettingsStore(store kvstore.Store, defaults Settings) *SettingsStore {
	return &SettingsStore{store: store, defaults: defaults}
}

// Load returns the stored settings with every empty field taken from the
// defaults.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	var stored Settings
	if err := s.store.Load(ctx, kvstore.ScopeConfig, &stored); err != nil {
		return s.defaults, fmt.Errorf("loading settings: %w", err)
	}
	if err := mergo.Merge(&stored, s.defaults); err != nil {
		return s.defaults, fmt.Errorf("merging settings: %w", err)
	}
	return stored, nil
}

// Save replaces the stored settings.
func (s *SettingsStore) Save(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.store.Set(ctx, kvstore.ScopeConfig, settings.values()); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Clear drops the stored settings so that the defaults apply again.
func (s *SettingsStore) Clear(ctx context.Context) error {
	return s.store.Clear(ctx, kvstore.ScopeConfig)
}
