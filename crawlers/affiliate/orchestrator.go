package affiliate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/LexiconIndonesia/creator-crawler-service/common/logger"
	"github.com/LexiconIndonesia/creator-crawler-service/common/work"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// CompletionListener is called once per completed session.
type CompletionListener func(ctx context.Context, summary Summary)

type Option func(*Orchestrator)

func WithClock(clock Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

func WithNotifier(notifier Notifier) Option {
	return func(o *Orchestrator) { o.notifier = notifier }
}

func WithRunRecorder(runs RunRecorder) Option {
	return func(o *Orchestrator) { o.runs = runs }
}

func WithEventPublisher(events EventPublisher) Option {
	return func(o *Orchestrator) { o.events = events }
}

// WithSearchInterval sets how long a search window stays open before the
// cursor moves on.
func WithSearchInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// Orchestrator sequences the searches of a session. Every transition runs
// under mu, so the timer, the intercepted events and the commands never
// interleave.
type Orchestrator struct {
	mu       sync.Mutex
	session  Session
	runID    string
	timer    Timer
	inflight *sync.WaitGroup
	// genCtx is cancelled when the session it belongs to is replaced.
	genCtx    context.Context
	genCancel context.CancelFunc

	baseCtx    context.Context
	background sync.WaitGroup

	store     kvstore.Store
	settings  SettingsLoader
	driver    SearchDriver
	profiles  ProfileSource
	sink      Sink
	notifier  Notifier
	clock     Clock
	runs      RunRecorder
	events    EventPublisher
	interval  time.Duration
	listeners []CompletionListener
}

// NewOrchestrator wires the state machine to its ports. ctx bounds all work
// started by timers and fetches.
func NewOrchestrator(ctx context.Context, store kvstore.Store, settings SettingsLoader, driver SearchDriver, profiles ProfileSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseCtx:  ctx,
		store:    store,
		settings: settings,
		driver:   driver,
		profiles: profiles,
		notifier: NewNatsNotifier(nil, ""),
		clock:    RealClock,
		interval: 5 * time.Second,
		inflight: &sync.WaitGroup{},
	}
	o.session.Reset()
	o.genCtx, o.genCancel = context.WithCancel(ctx)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnComplete registers a listener for completed sessions.
func (o *Orchestrator) OnComplete(l CompletionListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, l)
}

// Recover loads the persisted session so that status and continue work after
// a restart. A session that was still marked as crawling is paused.
func (o *Orchestrator) Recover(ctx context.Context) error {
	var local LocalState
	if err := o.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		return fmt.Errorf("loading crawl state: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session.Active {
		return nil
	}
	o.session.Restore(local)
	o.runID = local.RunID
	if local.IsCrawling {
		log.Info().Str("runID", local.RunID).Int("index", local.CurrentCreatorIndex).Msg("Pausing crawl interrupted by restart")
		o.persist(ctx, map[string]any{keyIsCrawling: false})
		if o.runs != nil && o.runID != "" {
			if err := o.runs.Pause(ctx, o.runID); err != nil {
				log.Warn().Err(err).Str("runID", o.runID).Msg("Failed to pause interrupted run")
			}
		}
	}
	return nil
}

// Start begins a new session over cmd.CreatorIDs. An active session is
// stopped first, once the command has been accepted.
func (o *Orchestrator) Start(ctx context.Context, cmd StartCommand) error {
	cmd.CreatorIDs = CleanIDs(cmd.CreatorIDs)
	if len(cmd.CreatorIDs) == 0 {
		return ErrNoCreatorIDs
	}
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("invalid start command: %w", err)
	}

	settings, err := o.settings.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
	}
	sink := settings.SinkConfig()

	o.mu.Lock()
	defer o.mu.Unlock()

	if cmd.UseAPI && !sink.configured() {
		o.notifier.Notify(ctx, notifySinkMissing)
		return ErrSinkNotConfigured
	}

	if o.haltLocked(ctx) {
		log.Info().Str("runID", o.runID).Msg("Stopping active crawl before starting a new one")
		o.recordRun(ctx, "cancel", RunRecorder.Cancel)
	}

	startedAt := cmd.StartTime
	if startedAt == 0 {
		startedAt = o.clock.Now().UnixMilli()
	}

	o.newGenerationLocked()
	o.runID = uuid.NewString()
	o.session.Begin(cmd.CreatorIDs, cmd.UseAPI, sink, startedAt)
	ctx = logger.WithRunID(ctx, o.runID)

	o.persist(ctx, map[string]any{
		keyUseAPI:               cmd.UseAPI,
		keyIsCrawling:           true,
		keyStartTime:            startedAt,
		keyCreatorIDs:           o.session.TargetIDs,
		keyCrawledCreators:      []CreatorRecord{},
		keyNotFoundCreators:     []string{},
		keyCurrentCreatorIndex:  0,
		keyProcessCount:         0,
		keyCrawlDurationSeconds: 0,
		keyIsCompleted:          false,
		keyRunID:                o.runID,
	})
	if o.runs != nil {
		if err := o.runs.Start(ctx, o.runID, cmd.UseAPI, len(cmd.CreatorIDs)); err != nil {
			log.Warn().Err(err).Str("runID", o.runID).Msg("Failed to record run start")
		}
	}

	log.Info().Ctx(ctx).
		Str("runID", o.runID).
		Int("total", len(cmd.CreatorIDs)).
		Bool("useApi", cmd.UseAPI).
		Msg("Starting crawl")

	o.searchLocked(ctx)
	return nil
}

// Continue resumes the persisted session at its cursor. A session that
// already completed cannot be resumed.
func (o *Orchestrator) Continue(ctx context.Context) error {
	settings, err := o.settings.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Active {
		return ErrAlreadyCrawling
	}

	var local LocalState
	if err := o.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		return fmt.Errorf("loading crawl state: %w", err)
	}
	if len(local.CreatorIDs) == 0 || local.IsCompleted {
		return ErrNothingToResume
	}

	o.session.Resume(local, settings.SinkConfig())
	o.runID = local.RunID
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	ctx = logger.WithRunID(ctx, o.runID)

	o.persist(ctx, map[string]any{keyIsCrawling: true, keyRunID: o.runID})
	o.recordRun(ctx, "resume", RunRecorder.Resume)

	log.Info().Ctx(ctx).
		Str("runID", o.runID).
		Int("index", o.session.Cursor).
		Int("total", len(o.session.TargetIDs)).
		Msg("Continuing crawl")

	if o.session.State() == StateFinishing {
		o.finishLocked()
		return nil
	}
	o.searchLocked(ctx)
	return nil
}

// Stop pauses the active session. It reports false when nothing was running.
func (o *Orchestrator) Stop(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.haltLocked(ctx) {
		return false
	}
	ctx = logger.WithRunID(ctx, o.runID)
	o.recordRun(ctx, "pause", RunRecorder.Pause)
	log.Info().Ctx(ctx).Int("index", o.session.Cursor).Msg("Crawl stopped")
	o.notifier.Notify(ctx, notifyStopped)
	return true
}

// Reset stops any session and clears the local scope.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.haltLocked(ctx) {
		o.recordRun(ctx, "cancel", RunRecorder.Cancel)
	}
	o.newGenerationLocked()
	o.session.Reset()
	o.runID = ""

	if err := o.store.Clear(ctx, kvstore.ScopeLocal); err != nil {
		log.Error().Err(err).Msg("Failed to clear crawl state")
	}
	if err := o.store.Set(ctx, kvstore.ScopeLocal, defaultLocalState()); err != nil {
		return fmt.Errorf("resetting crawl state: %w", err)
	}
	log.Info().Msg("Crawl reset")
	return nil
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.session.snapshot()
	st.RunID = o.runID
	return st
}

// Active reports whether a session is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Active
}

// Run feeds intercepted events to HandleEvent until ctx is done or events is
// closed.
func (o *Orchestrator) Run(ctx context.Context, events <-chan InterceptedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			o.HandleEvent(ctx, evt)
		}
	}
}

// HandleEvent correlates one intercepted search response.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt InterceptedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx = logger.WithRunID(ctx, o.runID)
	d := o.session.Correlate(evt)
	switch d.Kind {
	case DecisionIgnore:
		log.Debug().Str("url", evt.Payload.URL).Msg("Ignoring intercepted data")

	case DecisionNoMatch:
		log.Warn().Ctx(ctx).Str("creatorID", d.ID).Msg(notFoundMessage)
		if o.session.MarkNotFound(d.ID) {
			o.persist(ctx, map[string]any{keyNotFoundCreators: o.session.NotFound})
			o.publishErrorLocked(newCrawlError(d.ID, CodeCreatorNotFound, notFoundMessage))
		}

	case DecisionMatch:
		log.Info().Ctx(ctx).Str("creatorID", d.ID).Msg("Processing intercepted data for creator")
		wg := o.inflight
		wg.Add(1)
		o.background.Add(1)
		go o.fetchProfiles(logger.WithRunID(o.genCtx, o.runID), o.session.Generation(), wg, d, evt)
	}
}

// Wait blocks until every background publish, fetch and completion started
// so far has returned.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// Shutdown pauses the active session without notifying and waits for
// background work.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.haltLocked(ctx) {
		o.recordRun(ctx, "pause", RunRecorder.Pause)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Orchestrator shutdown timed out")
	}
}

func (o *Orchestrator) fetchProfiles(ctx context.Context, generation uint64, wg *sync.WaitGroup, d Decision, evt InterceptedEvent) {
	defer o.background.Done()
	defer wg.Done()

	result := o.profiles.FetchProfiles(ctx, d.Stub, evt)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session.Generation() != generation {
		log.Info().Str("creatorID", d.ID).Msg("Dropping profiles of a replaced session")
		return
	}
	o.session.FetchSettled(d.Token)

	record, ok := result.Get()
	if !ok {
		if o.session.MarkNotFound(d.ID) {
			o.persist(ctx, map[string]any{keyNotFoundCreators: o.session.NotFound})
		}
		o.publishErrorLocked(newCrawlError(d.ID, CodeCreatorHasNoProfiles, fmt.Sprintf(hasNoProfilesMessageFmt, d.ID)))
		return
	}

	o.appendCrawledLocked(ctx, record)
	log.Info().Ctx(ctx).Str("creatorID", d.ID).Int("profiles", len(record.Profiles)).Msg("Processed profiles for creator")

	if o.session.UseSink && o.sink != nil {
		cfg := o.session.Sink
		o.goBackground(func(ctx context.Context) {
			_ = o.sink.PublishCreators(ctx, cfg, record)
		})
	}
	o.publishEventLocked(constants.CreatorCrawledSubject, record)
}

// searchLocked issues the search for the target at the cursor and arms the
// fallback timer. The cursor is persisted first.
func (o *Orchestrator) searchLocked(ctx context.Context) {
	id, ok := o.session.BeginSearch()
	if !ok {
		if o.session.Active && o.session.Exhausted() {
			o.finishLocked()
		}
		return
	}

	o.persist(ctx, map[string]any{
		keyCurrentCreatorIndex: o.session.Cursor,
		keyProcessCount:        o.session.ProcessedCount,
	})

	if err := o.driver.Search(ctx, id); err != nil {
		o.abortLocked(ctx, err)
		return
	}

	token := o.session.Arm()
	o.timer = o.clock.AfterFunc(o.interval, func() { o.onTimer(token) })

	log.Info().Ctx(ctx).
		Str("creatorID", id).
		Int("index", o.session.Cursor+1).
		Int("total", len(o.session.TargetIDs)).
		Msg("Search creator")
}

func (o *Orchestrator) onTimer(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res, ok := o.session.Advance(token)
	if !ok {
		return
	}
	o.timer = nil
	ctx := logger.WithRunID(o.baseCtx, o.runID)

	values := map[string]any{keyCurrentCreatorIndex: o.session.Cursor}
	if res.TimedOut {
		log.Warn().Ctx(ctx).Str("creatorID", res.ID).Msg("No search response for creator")
		values[keyNotFoundCreators] = o.session.NotFound
		o.publishErrorLocked(newCrawlError(res.ID, CodeCreatorNotFound, notFoundMessage))
	}
	o.persist(ctx, values)

	if res.Finished {
		o.finishLocked()
		return
	}
	o.searchLocked(ctx)
}

// finishLocked waits for the fetches of the session outside the lock, then
// completes it unless it was stopped or replaced meanwhile.
func (o *Orchestrator) finishLocked() {
	o.stopTimerLocked()
	generation := o.session.Generation()
	wg := o.inflight
	log.Info().Str("runID", o.runID).Msg("Waiting for in-flight profile fetches")

	o.goBackground(func(context.Context) {
		wg.Wait()

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.session.Generation() != generation || !o.session.Active || o.session.State() != StateFinishing {
			return
		}
		o.completeLocked()
	})
}

func (o *Orchestrator) completeLocked() {
	ctx := logger.WithRunID(o.baseCtx, o.runID)

	var local LocalState
	if err := o.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		log.Error().Err(err).Msg("Failed to load crawled creators")
	}
	notFound := o.session.Reconcile(local.CrawledCreators)
	elapsed := o.clock.Now().UnixMilli() - o.session.StartedAt
	duration := int64(math.Round(float64(elapsed) / 1000))

	o.persist(ctx, map[string]any{
		keyIsCrawling:           false,
		keyIsCompleted:          true,
		keyCrawlDurationSeconds: duration,
		keyNotFoundCreators:     notFound,
	})
	o.session.Complete()

	summary := Summary{
		RunID:           o.runID,
		Total:           len(o.session.TargetIDs),
		Found:           len(local.CrawledCreators),
		NotFound:        append([]string{}, notFound...),
		DurationSeconds: duration,
		UseAPI:          o.session.UseSink,
	}

	log.Info().Ctx(ctx).
		Int("found", summary.Found).
		Int("notFound", len(summary.NotFound)).
		Int64("durationSeconds", duration).
		Msg("Crawl completed")
	o.notifier.Notify(ctx, notifyCompleted)

	if o.runs != nil && o.runID != "" {
		if err := o.runs.Complete(ctx, o.runID, work.RunSummary{
			Found:           summary.Found,
			NotFound:        len(summary.NotFound),
			DurationSeconds: duration,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to record run completion")
		}
	}
	o.publishEventLocked(constants.CrawlCompletedSubject, summary)

	for _, l := range o.listeners {
		l := l
		o.goBackground(func(ctx context.Context) { l(ctx, summary) })
	}
}

func (o *Orchestrator) abortLocked(ctx context.Context, err error) {
	log.Error().Ctx(ctx).Err(err).Int("index", o.session.Cursor).Msg("Search failed, crawling cannot continue")
	o.haltLocked(ctx)
	o.recordRun(ctx, "fail", RunRecorder.Fail)
	o.notifier.Notify(ctx, notifySearchInputMissing)
}

// haltLocked cancels the open window and marks the session inactive.
func (o *Orchestrator) haltLocked(ctx context.Context) bool {
	o.stopTimerLocked()
	if !o.session.Pause() {
		return false
	}
	o.persist(ctx, map[string]any{keyIsCrawling: false})
	return true
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// newGenerationLocked cancels the fetches of the previous session.
func (o *Orchestrator) newGenerationLocked() {
	o.genCancel()
	o.genCtx, o.genCancel = context.WithCancel(o.baseCtx)
	o.inflight = &sync.WaitGroup{}
}

func (o *Orchestrator) appendCrawledLocked(ctx context.Context, record CreatorRecord) {
	var local LocalState
	if err := o.store.Load(ctx, kvstore.ScopeLocal, &local); err != nil {
		log.Error().Err(err).Str("creatorID", record.Handle).Msg("Failed to save creator data")
		return
	}
	crawled := append(local.CrawledCreators, record)
	if err := o.store.Set(ctx, kvstore.ScopeLocal, map[string]any{keyCrawledCreators: crawled}); err != nil {
		log.Error().Err(err).Str("creatorID", record.Handle).Msg("Failed to save creator data")
		return
	}
	log.Debug().Str("id", record.ID).Str("uniqueId", record.Handle).Int("totalSaved", len(crawled)).Msg("Creator data saved")
}

func (o *Orchestrator) publishErrorLocked(crawlErr CrawlError) {
	if !o.session.UseSink || o.sink == nil {
		return
	}
	cfg := o.session.Sink
	o.goBackground(func(ctx context.Context) {
		_ = o.sink.PublishErrors(ctx, cfg, crawlErr)
	})
}

func (o *Orchestrator) publishEventLocked(subject string, v any) {
	if o.events == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to encode event")
		return
	}
	o.goBackground(func(ctx context.Context) {
		if err := o.events.PublishSync(ctx, subject, data); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
		}
	})
}

// recordRun is a no-op without a run recorder.
func (o *Orchestrator) recordRun(ctx context.Context, action string, fn func(RunRecorder, context.Context, string) error) {
	if o.runs == nil || o.runID == "" {
		return
	}
	if err := fn(o.runs, ctx, o.runID); err != nil {
		log.Warn().Err(err).Str("runID", o.runID).Str("action", action).Msg("Failed to record run transition")
	}
}

func (o *Orchestrator) goBackground(fn func(ctx context.Context)) {
	ctx := logger.WithRunID(o.baseCtx, o.runID)
	o.background.Add(1)
	go func() {
		defer o.background.Done()
		fn(ctx)
	}()
}

// persist writes values to the local scope. Failures are logged and the write
// is lost.
func (o *Orchestrator) persist(ctx context.Context, values map[string]any) {
	if err := o.store.Set(ctx, kvstore.ScopeLocal, values); err != nil {
		log.Error().Err(err).Strs("keys", lo.Keys(values)).Msg("Failed to persist crawl state")
	}
}

// CleanIDs trims every id and drops the empty ones.
func CleanIDs(ids []string) []string {
	return lo.Compact(lo.Map(ids, func(id string, _ int) string { return strings.TrimSpace(id) }))
}
