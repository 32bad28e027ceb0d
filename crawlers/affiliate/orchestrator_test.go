package affiliate

import (
	"context"
	"testing"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	o        *Orchestrator
	store    *kvstore.MemoryStore
	clock    *fakeClock
	driver   *fakeDriver
	profiles *fakeProfiles
	sink     *fakeSink
	notifier *fakeNotifier
	runs     *fakeRuns
	events   *fakeEvents
}

func newHarness(t *testing.T, settings SettingsLoader) *harness {
	t.Helper()
	h := &harness{
		store:    kvstore.NewMemoryStore(),
		clock:    newFakeClock(),
		driver:   &fakeDriver{},
		profiles: &fakeProfiles{found: map[string]map[string]any{}},
		sink:     &fakeSink{},
		notifier: &fakeNotifier{},
		runs:     &fakeRuns{},
		events:   &fakeEvents{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.o = NewOrchestrator(ctx, h.store, settings, h.driver, h.profiles,
		WithClock(h.clock),
		WithSink(h.sink),
		WithNotifier(h.notifier),
		WithRunRecorder(h.runs),
		WithEventPublisher(h.events),
	)
	t.Cleanup(h.o.Wait)
	return h
}

func (h *harness) local(t *testing.T) LocalState {
	t.Helper()
	var local LocalState
	require.NoError(t, h.store.Load(context.Background(), kvstore.ScopeLocal, &local))
	return local
}

func TestOrchestratorFoundAndNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sinkSettings)
	h.profiles.found["alice"] = map[string]any{"followers": 10}

	summaries := make(chan Summary, 1)
	h.o.OnComplete(func(_ context.Context, s Summary) { summaries <- s })

	require.NoError(t, h.o.Start(ctx, StartCommand{UseAPI: true, CreatorIDs: []string{" alice ", "bob", ""}}))
	assert.Equal(t, []string{"alice"}, h.driver.Searched())
	assert.True(t, h.local(t).IsCrawling)

	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "7001", "Alice"))))
	h.o.Wait()
	require.True(t, h.clock.Fire())
	assert.Equal(t, []string{"alice", "bob"}, h.driver.Searched())

	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("bobby", "8", "Bobby"))))
	require.True(t, h.clock.Fire())
	h.o.Wait()

	local := h.local(t)
	assert.False(t, local.IsCrawling)
	require.Len(t, local.CrawledCreators, 1)
	assert.Equal(t, CreatorRecord{ID: "7001", Handle: "alice", DisplayName: "Alice", Profiles: map[string]any{"followers": float64(10)}}, local.CrawledCreators[0])
	assert.Equal(t, []string{"bob"}, local.NotFoundCreators)
	assert.Equal(t, 2, local.CurrentCreatorIndex)
	assert.Equal(t, 2, local.ProcessCount)
	assert.EqualValues(t, 10, local.CrawlDurationSeconds)

	require.Len(t, h.sink.Creators(), 1)
	assert.Equal(t, "alice", h.sink.Creators()[0].Handle)
	assert.Equal(t, []CrawlError{newCrawlError("bob", CodeCreatorNotFound, notFoundMessage)}, h.sink.Errors())

	assert.Equal(t, []string{notifyCompleted.Message}, h.notifier.Messages())
	assert.Equal(t, []string{"start", "complete"}, h.runs.Calls())
	assert.Equal(t, 1, h.runs.summary.Found)
	assert.Equal(t, 1, h.runs.summary.NotFound)
	assert.ElementsMatch(t, []string{constants.CreatorCrawledSubject, constants.CrawlCompletedSubject}, h.events.Subjects())

	st := h.o.Status()
	assert.False(t, st.Active)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, 100.0, st.Progress)
	assert.False(t, st.CanContinue)

	select {
	case s := <-summaries:
		assert.Equal(t, 1, s.Found)
		assert.Equal(t, []string{"bob"}, s.NotFound)
		assert.True(t, s.UseAPI)
	default:
		t.Fatal("completion listener was not called")
	}
}

func TestOrchestratorTimeoutMarksNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sinkSettings)

	require.NoError(t, h.o.Start(ctx, StartCommand{UseAPI: true, CreatorIDs: []string{"ghost"}}))
	require.True(t, h.clock.Fire())
	h.o.Wait()

	local := h.local(t)
	assert.Equal(t, []string{"ghost"}, local.NotFoundCreators)
	assert.EqualValues(t, 5, local.CrawlDurationSeconds)
	assert.Equal(t, []CrawlError{newCrawlError("ghost", CodeCreatorNotFound, notFoundMessage)}, h.sink.Errors())
	assert.False(t, h.clock.Fire(), "no timer may be left after completion")
}

func TestOrchestratorStopAndContinue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a", "b", "c"}}))
	require.True(t, h.clock.Fire())

	assert.True(t, h.o.Stop(ctx))
	assert.False(t, h.o.Stop(ctx), "stop is idempotent")
	assert.Equal(t, []string{notifyStopped.Message}, h.notifier.Messages())
	assert.Zero(t, h.clock.Pending())

	st := h.o.Status()
	assert.Equal(t, "paused", st.State)
	assert.Equal(t, 1, st.Cursor)
	assert.True(t, st.CanContinue)
	assert.False(t, h.local(t).IsCrawling)

	require.NoError(t, h.o.Continue(ctx))
	assert.Equal(t, []string{"a", "b", "b"}, h.driver.Searched())
	assert.True(t, h.local(t).IsCrawling)
	assert.ErrorIs(t, h.o.Continue(ctx), ErrAlreadyCrawling)
	assert.Equal(t, []string{"start", "pause", "resume"}, h.runs.Calls())
	assert.Equal(t, 3, h.local(t).ProcessCount)
}

func TestOrchestratorContinueWithoutState(t *testing.T) {
	h := newHarness(t, staticSettings{})
	assert.ErrorIs(t, h.o.Continue(context.Background()), ErrNothingToResume)
}

func TestOrchestratorContinueAtEndFinishes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	require.NoError(t, h.store.Set(ctx, kvstore.ScopeLocal, map[string]any{
		keyCreatorIDs:          []string{"a"},
		keyCurrentCreatorIndex: 1,
		keyStartTime:           h.clock.Now().UnixMilli(),
		keyRunID:               "run-1",
	}))

	require.NoError(t, h.o.Continue(ctx))
	h.o.Wait()

	assert.Empty(t, h.driver.Searched())
	assert.Equal(t, []string{notifyCompleted.Message}, h.notifier.Messages())
	assert.False(t, h.o.Active())
	assert.Equal(t, "run-1", h.o.Status().RunID)
}

func TestOrchestratorFetchAfterStopStillLands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.profiles.found["alice"] = map[string]any{"x": 1}
	h.profiles.gate = make(chan struct{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"alice", "bob"}}))
	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "1", "Alice"))))
	require.True(t, h.o.Stop(ctx))

	close(h.profiles.gate)
	h.o.Wait()

	crawled := h.local(t).CrawledCreators
	require.Len(t, crawled, 1)
	assert.Equal(t, "alice", crawled[0].Handle)
}

func TestOrchestratorFetchAfterResetIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.profiles.found["alice"] = map[string]any{"x": 1}
	h.profiles.gate = make(chan struct{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"alice"}}))
	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "1", "Alice"))))
	require.NoError(t, h.o.Reset(ctx))

	close(h.profiles.gate)
	h.o.Wait()
	assert.Empty(t, h.local(t).CrawledCreators)
}

func TestOrchestratorSearchInputMissing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.driver.err = ErrSearchInputNotFound

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a", "b"}}))

	assert.False(t, h.o.Active())
	assert.False(t, h.local(t).IsCrawling)
	assert.Equal(t, []string{notifySearchInputMissing.Message}, h.notifier.Messages())
	assert.Equal(t, []string{"start", "fail"}, h.runs.Calls())
	assert.Zero(t, h.clock.Pending())
	assert.Equal(t, 0, h.o.Status().Cursor)
}

func TestOrchestratorCreatorWithoutProfiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sinkSettings)

	require.NoError(t, h.o.Start(ctx, StartCommand{UseAPI: true, CreatorIDs: []string{"alice"}}))
	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "1", "Alice"))))
	h.o.Wait()

	assert.Equal(t, []string{"alice"}, h.local(t).NotFoundCreators)
	assert.Equal(t, []CrawlError{newCrawlError("alice", CodeCreatorHasNoProfiles, "Creator 'alice' has no profiles.")}, h.sink.Errors())
	assert.Empty(t, h.sink.Creators())
}

func TestOrchestratorSinkNotConfigured(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	err := h.o.Start(ctx, StartCommand{UseAPI: true, CreatorIDs: []string{"a"}})
	assert.ErrorIs(t, err, ErrSinkNotConfigured)
	assert.Equal(t, []string{notifySinkMissing.Message}, h.notifier.Messages())
	assert.Empty(t, h.driver.Searched())
	assert.Empty(t, h.runs.Calls())
	assert.Empty(t, h.local(t).CreatorIDs)
}

func TestOrchestratorStartRejectsEmptyIDs(t *testing.T) {
	h := newHarness(t, staticSettings{})
	err := h.o.Start(context.Background(), StartCommand{CreatorIDs: []string{" ", ""}})
	assert.ErrorIs(t, err, ErrNoCreatorIDs)
}

func TestOrchestratorStartReplacesActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a"}}))
	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"b", "c"}}))

	assert.Equal(t, []string{"a", "b"}, h.driver.Searched())
	assert.Equal(t, []string{"start", "cancel", "start"}, h.runs.Calls())
	assert.Equal(t, 1, h.clock.Pending())
	assert.Equal(t, []string{"b", "c"}, h.local(t).CreatorIDs)
}

func TestOrchestratorReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a", "b"}}))
	require.True(t, h.clock.Fire())
	require.NoError(t, h.o.Reset(ctx))

	local := h.local(t)
	assert.Empty(t, local.CreatorIDs)
	assert.Empty(t, local.NotFoundCreators)
	assert.Zero(t, local.CurrentCreatorIndex)
	assert.False(t, local.IsCrawling)

	st := h.o.Status()
	assert.Equal(t, "idle", st.State)
	assert.Zero(t, st.Total)
	assert.Empty(t, st.RunID)
	assert.Zero(t, h.clock.Pending())
	assert.Equal(t, []string{"start", "cancel"}, h.runs.Calls())
}

func TestOrchestratorRecoverPausesInterruptedCrawl(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	require.NoError(t, h.store.Set(ctx, kvstore.ScopeLocal, map[string]any{
		keyIsCrawling:          true,
		keyCreatorIDs:          []string{"a", "b", "c"},
		keyCurrentCreatorIndex: 1,
		keyRunID:               "run-1",
	}))

	require.NoError(t, h.o.Recover(ctx))

	st := h.o.Status()
	assert.True(t, st.CanContinue)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, 3, st.Total)
	assert.False(t, h.local(t).IsCrawling)
	assert.Equal(t, []string{"pause"}, h.runs.Calls())
}

func TestOrchestratorIgnoresEventsWhileIdle(t *testing.T) {
	h := newHarness(t, staticSettings{})
	h.o.HandleEvent(context.Background(), fetchEvent(searchBody(creatorEntry("a", "1", "A"))))
	h.o.Wait()
	assert.Empty(t, h.local(t).CrawledCreators)
	assert.Empty(t, h.local(t).NotFoundCreators)
}

func TestOrchestratorRunStopsWhenChannelCloses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.profiles.found["a"] = map[string]any{"x": 1}
	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a"}}))

	events := make(chan InterceptedEvent, 1)
	events <- fetchEvent(searchBody(creatorEntry("a", "1", "A")))
	close(events)
	h.o.Run(ctx, events)
	h.o.Wait()

	assert.Len(t, h.local(t).CrawledCreators, 1)
}

func TestOrchestratorFinishWaitsForInflightFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.profiles.found["alice"] = map[string]any{"x": 1}
	h.profiles.gate = make(chan struct{})

	summaries := make(chan Summary, 2)
	h.o.OnComplete(func(_ context.Context, s Summary) { summaries <- s })

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"alice"}}))
	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "1", "Alice"))))
	require.True(t, h.clock.Fire())

	assert.True(t, h.o.Active(), "finishing must wait for the pending fetch")
	assert.Equal(t, "finishing", h.o.Status().State)
	assert.Empty(t, h.notifier.Messages())
	assert.True(t, h.local(t).IsCrawling)

	close(h.profiles.gate)
	h.o.Wait()

	local := h.local(t)
	require.Len(t, local.CrawledCreators, 1)
	assert.Equal(t, "alice", local.CrawledCreators[0].Handle)
	assert.Empty(t, local.NotFoundCreators)
	assert.False(t, local.IsCrawling)
	assert.True(t, local.IsCompleted)
	assert.False(t, h.o.Active())
	assert.Equal(t, []string{notifyCompleted.Message}, h.notifier.Messages())
	assert.Equal(t, []string{"start", "complete"}, h.runs.Calls())
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, (<-summaries).Found)
}

func TestOrchestratorLateMatchIsReconciledAtFinish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})
	h.profiles.found["alice"] = map[string]any{"x": 1}

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"alice"}}))

	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alicia", "9", "Alicia"))))
	assert.Equal(t, []string{"alice"}, h.local(t).NotFoundCreators)

	h.o.HandleEvent(ctx, fetchEvent(searchBody(creatorEntry("alice", "1", "Alice"))))
	h.o.Wait()
	require.True(t, h.clock.Fire())
	h.o.Wait()

	local := h.local(t)
	require.Len(t, local.CrawledCreators, 1)
	assert.Empty(t, local.NotFoundCreators)
	assert.Equal(t, 0, h.runs.summary.NotFound)
	assert.Equal(t, 1, h.runs.summary.Found)
	assert.Empty(t, h.o.Status().NotFound)
}

func TestOrchestratorRejectedStartKeepsActiveSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"a", "b"}}))
	err := h.o.Start(ctx, StartCommand{UseAPI: true, CreatorIDs: []string{"c"}})
	require.ErrorIs(t, err, ErrSinkNotConfigured)

	assert.True(t, h.o.Active())
	assert.Equal(t, 1, h.clock.Pending())
	assert.Equal(t, []string{"start"}, h.runs.Calls())

	local := h.local(t)
	assert.True(t, local.IsCrawling)
	assert.Equal(t, []string{"a", "b"}, local.CreatorIDs)
	assert.Equal(t, []string{"a"}, h.driver.Searched())
}

func TestOrchestratorContinueAfterCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, staticSettings{})

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"ghost"}}))
	require.True(t, h.clock.Fire())
	h.o.Wait()
	require.EqualValues(t, 5, h.local(t).CrawlDurationSeconds)

	h.clock.Advance(time.Minute)
	assert.ErrorIs(t, h.o.Continue(ctx), ErrNothingToResume)

	local := h.local(t)
	assert.EqualValues(t, 5, local.CrawlDurationSeconds)
	assert.False(t, local.IsCrawling)
	assert.Equal(t, []string{notifyCompleted.Message}, h.notifier.Messages())
	assert.Equal(t, []string{"start", "complete"}, h.runs.Calls())

	require.NoError(t, h.o.Start(ctx, StartCommand{CreatorIDs: []string{"next"}}))
	assert.False(t, h.local(t).IsCompleted)
}
