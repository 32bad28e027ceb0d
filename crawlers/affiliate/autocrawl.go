package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const endpointSeparator = ":endpoint/"

var ErrIDsEndpointNotSet = errors.New("creator ids endpoint is not set")

type idsRequest struct {
	Endpoint string `json:"endpoint"`
}

type idsItem struct {
	ID any `json:"id"`
}

type idsResponse struct {
	Data *struct {
		Items []idsItem `json:"items"`
	} `json:"data"`
}

// CreatorIDSource fetches the creator handles to crawl from the backend.
type CreatorIDSource struct {
	client *resty.Client
}

func NewCreatorIDSource(client *resty.Client) *CreatorIDSource {
	return &CreatorIDSource{client: client}
}

// FetchCreatorIDs posts {"endpoint": path} to the base part of
// settings.CreatorIDsEndpoint, which has the form <base>:endpoint/<path>.
func (s *CreatorIDSource) FetchCreatorIDs(ctx context.Context, settings Settings) ([]string, error) {
	if settings.CreatorIDsEndpoint == "" {
		return nil, ErrIDsEndpointNotSet
	}
	base, path, _ := strings.Cut(settings.CreatorIDsEndpoint, endpointSeparator)
	log.Info().Str("url", base).Str("endpoint", path).Msg("Fetching creator IDs")

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(idsRequest{Endpoint: path})
	if settings.APIKeyValue != "" {
		req.SetHeader("X-API-Key", settings.APIKeyValue)
	}

	resp, err := req.Post(base)
	if err != nil {
		return nil, fmt.Errorf("fetching creator ids: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching creator ids: status %d", resp.StatusCode())
	}

	var body idsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decoding creator ids: %w", err)
	}
	if body.Data == nil {
		return nil, ErrNoCreatorIDs
	}

	ids := lo.FilterMap(body.Data.Items, func(item idsItem, _ int) (string, bool) {
		id, ok := item.ID.(string)
		id = strings.TrimSpace(id)
		return id, ok && id != ""
	})
	if len(ids) == 0 {
		return nil, ErrNoCreatorIDs
	}
	return ids, nil
}

// IDFetcher is satisfied by *CreatorIDSource.
type IDFetcher interface {
	FetchCreatorIDs(ctx context.Context, settings Settings) ([]string, error)
}

// Crawler is the part of the orchestrator the auto crawler drives.
type Crawler interface {
	Start(ctx context.Context, cmd StartCommand) error
	Active() bool
}

// AutoCrawler starts a new API-fed crawl whenever the previous one completes.
type AutoCrawler struct {
	mu      sync.Mutex
	enabled bool
	timer   Timer

	crawler  Crawler
	ids      IDFetcher
	settings SettingsLoader
	store    kvstore.Store
	clock    Clock
}

func NewAutoCrawler(crawler Crawler, ids IDFetcher, settings SettingsLoader, store kvstore.Store, clock Clock) *AutoCrawler {
	if clock == nil {
		clock = RealClock
	}
	return &AutoCrawler{
		crawler:  crawler,
		ids:      ids,
		settings: settings,
		store:    store,
		clock:    clock,
	}
}

// Restore re-enables auto crawling if it was on before a restart. The next
// cycle waits for one interval.
func (a *AutoCrawler) Restore(ctx context.Context) error {
	var local LocalState
	if err := a.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		return err
	}
	if !local.IsAutoCrawling {
		return nil
	}
	a.mu.Lock()
	a.enabled = true
	a.mu.Unlock()
	a.schedule(ctx)
	return nil
}

func (a *AutoCrawler) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Enable turns auto crawling on and runs a cycle right away unless a crawl is
// in progress.
func (a *AutoCrawler) Enable(ctx context.Context) error {
	a.mu.Lock()
	already := a.enabled
	a.enabled = true
	a.mu.Unlock()

	if err := a.store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyIsAutoCrawling: true}); err != nil {
		log.Error().Err(err).Msg("Failed to persist auto crawl flag")
	}
	if already || a.crawler.Active() {
		return nil
	}
	return a.Cycle(ctx)
}

// Disable turns auto crawling off and cancels a scheduled cycle.
func (a *AutoCrawler) Disable(ctx context.Context) {
	a.mu.Lock()
	a.enabled = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if err := a.store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyIsAutoCrawling: false}); err != nil {
		log.Error().Err(err).Msg("Failed to persist auto crawl flag")
	}
}

// OnComplete schedules the next cycle. It is registered as a completion
// listener of the orchestrator.
func (a *AutoCrawler) OnComplete(ctx context.Context, summary Summary) {
	if !a.Enabled() {
		return
	}
	log.Info().Str("runID", summary.RunID).Msg("Auto crawl is enabled, scheduling next cycle")
	a.schedule(ctx)
}

func (a *AutoCrawler) schedule(ctx context.Context) {
	settings, err := a.settings.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
	}
	interval := settings.Interval()

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.clock.AfterFunc(interval, func() {
		a.mu.Lock()
		a.timer = nil
		a.mu.Unlock()
		if err := a.Cycle(ctx); err != nil {
			log.Warn().Err(err).Msg("Auto-crawl cycle failed")
		}
	})
	log.Info().Dur("interval", interval).Msg("Next auto-crawl cycle scheduled")
}

// Cycle fetches the creator IDs and starts a crawl with the sink enabled. A
// failed fetch turns auto crawling off.
func (a *AutoCrawler) Cycle(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	if a.crawler.Active() {
		log.Info().Msg("Auto-crawl cycle skipped: a crawl is already in progress")
		return nil
	}
	log.Info().Msg("Performing auto-crawl cycle")

	settings, err := a.settings.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
	}
	ids, err := a.ids.FetchCreatorIDs(ctx, settings)
	if err == nil {
		ids = CleanIDs(ids)
		if len(ids) == 0 {
			err = ErrNoCreatorIDs
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("Auto-crawl cycle: failed to fetch creator IDs")
		a.Disable(ctx)
		return err
	}

	if err := a.store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyCreatorIDs: ids}); err != nil {
		log.Error().Err(err).Msg("Failed to persist fetched creator IDs")
	}
	return a.crawler.Start(ctx, StartCommand{
		UseAPI:     true,
		CreatorIDs: ids,
		StartTime:  a.clock.Now().UnixMilli(),
	})
}
