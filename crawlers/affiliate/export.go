package affiliate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/LexiconIndonesia/creator-crawler-service/common/storage"
	"github.com/rs/zerolog/log"
)

// ExportResult points at an uploaded export.
type ExportResult struct {
	Object    string    `json:"object"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Exporter uploads the crawl results to object storage.
type Exporter struct {
	store   kvstore.Store
	storage storage.StorageService
	bucket  string
	ttl     time.Duration
	clock   Clock
}

func NewExporter(store kvstore.Store, svc storage.StorageService, bucket string, ttl time.Duration, clock Clock) *Exporter {
	if clock == nil {
		clock = RealClock
	}
	return &Exporter{store: store, storage: svc, bucket: bucket, ttl: ttl, clock: clock}
}

// ExportCrawled uploads the crawled creators as indented JSON.
func (e *Exporter) ExportCrawled(ctx context.Context) (ExportResult, error) {
	var local LocalState
	if err := e.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		return ExportResult{}, fmt.Errorf("loading crawled creators: %w", err)
	}
	if len(local.CrawledCreators) == 0 {
		return ExportResult{}, ErrNothingToExport
	}
	data, err := json.MarshalIndent(local.CrawledCreators, "", "  ")
	if err != nil {
		return ExportResult{}, fmt.Errorf("encoding crawled creators: %w", err)
	}
	name := fmt.Sprintf("tiktok_crawled_creators_%s.json", e.stamp())
	object, err := e.storage.Upload(ctx, e.bucket, name, data, "application/json")
	if err != nil {
		return ExportResult{}, fmt.Errorf("uploading %s: %w", name, err)
	}
	return e.sign(ctx, object, len(local.CrawledCreators))
}

// ExportNotFound uploads the not-found handles, one per line.
func (e *Exporter) ExportNotFound(ctx context.Context) (ExportResult, error) {
	var local LocalState
	if err := e.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		return ExportResult{}, fmt.Errorf("loading not found creators: %w", err)
	}
	if len(local.NotFoundCreators) == 0 {
		return ExportResult{}, ErrNothingToExport
	}
	name := fmt.Sprintf("tiktok_not_found_creators_%s.txt", e.stamp())
	body := strings.NewReader(strings.Join(local.NotFoundCreators, "\n"))
	object, err := e.storage.StreamUpload(ctx, e.bucket, name, body, "text/plain")
	if err != nil {
		return ExportResult{}, fmt.Errorf("uploading %s: %w", name, err)
	}
	return e.sign(ctx, object, len(local.NotFoundCreators))
}

func (e *Exporter) sign(ctx context.Context, object string, count int) (ExportResult, error) {
	url, err := e.storage.GetSignedURL(ctx, e.bucket, object, e.ttl)
	if err != nil {
		return ExportResult{}, fmt.Errorf("signing %s: %w", object, err)
	}
	log.Info().Str("object", object).Int("count", count).Msg("Export uploaded")
	return ExportResult{
		Object:    object,
		URL:       url,
		Count:     count,
		ExpiresAt: e.clock.Now().Add(e.ttl).UTC(),
	}, nil
}

func (e *Exporter) stamp() string {
	return e.clock.Now().UTC().Format("2006_01_02_150405")
}
