package affiliate

import (
	"context"
	"sync"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/creator-crawler-service/common/work"
	"github.com/samber/mo"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock only moves when Fire or Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock without firing anything.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Pending counts timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Fire moves the clock to the earliest pending timer and runs it. It reports
// false when nothing was pending.
func (c *fakeClock) Fire() bool {
	c.mu.Lock()
	var next *fakeTimer
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if next == nil || t.at.Before(next.at) {
			next = t
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	if next.at.After(c.now) {
		c.now = next.at
	}
	c.mu.Unlock()

	next.f()
	return true
}

type fakeDriver struct {
	mu       sync.Mutex
	searched []string
	err      error
}

func (d *fakeDriver) Search(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.searched = append(d.searched, id)
	return nil
}

func (d *fakeDriver) Searched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.searched...)
}

// fakeProfiles answers with a record for every handle in found. When gate is
// set, each fetch waits for it to be closed.
type fakeProfiles struct {
	found map[string]map[string]any
	gate  chan struct{}
}

func (p *fakeProfiles) FetchProfiles(ctx context.Context, stub CreatorStub, _ InterceptedEvent) mo.Option[CreatorRecord] {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return mo.None[CreatorRecord]()
		}
	}
	profiles, ok := p.found[stub.Handle]
	if !ok {
		return mo.None[CreatorRecord]()
	}
	return mo.Some(CreatorRecord{ID: stub.ID, Handle: stub.Handle, DisplayName: stub.DisplayName, Profiles: profiles})
}

type fakeSink struct {
	mu       sync.Mutex
	creators []CreatorRecord
	errors   []CrawlError
}

func (s *fakeSink) PublishCreators(_ context.Context, _ SinkConfig, records ...CreatorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creators = append(s.creators, records...)
	return nil
}

func (s *fakeSink) PublishErrors(_ context.Context, _ SinkConfig, errs ...CrawlError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, errs...)
	return nil
}

func (s *fakeSink) Creators() []CreatorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CreatorRecord(nil), s.creators...)
}

func (s *fakeSink) Errors() []CrawlError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CrawlError(nil), s.errors...)
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []messaging.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note messaging.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notes))
	for _, note := range n.notes {
		out = append(out, note.Message)
	}
	return out
}

type fakeRuns struct {
	mu      sync.Mutex
	calls   []string
	summary work.RunSummary
}

func (r *fakeRuns) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return nil
}

func (r *fakeRuns) Start(context.Context, string, bool, int) error { return r.record("start") }
func (r *fakeRuns) Resume(context.Context, string) error           { return r.record("resume") }
func (r *fakeRuns) Pause(context.Context, string) error            { return r.record("pause") }
func (r *fakeRuns) Cancel(context.Context, string) error           { return r.record("cancel") }
func (r *fakeRuns) Fail(context.Context, string) error             { return r.record("fail") }

func (r *fakeRuns) Complete(_ context.Context, _ string, summary work.RunSummary) error {
	r.mu.Lock()
	r.summary = summary
	r.mu.Unlock()
	return r.record("complete")
}

func (r *fakeRuns) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeEvents struct {
	mu       sync.Mutex
	subjects []string
}

func (e *fakeEvents) PublishSync(_ context.Context, subject string, _ []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects = append(e.subjects, subject)
	return nil
}

func (e *fakeEvents) Subjects() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.subjects...)
}

type staticSettings Settings

func (s staticSettings) Load(context.Context) (Settings, error) { return Settings(s), nil }

var sinkSettings = staticSettings{
	PostCreatorDataEndpoint:  "http://sink.local/creators",
	PostCreatorErrorEndpoint: "http://sink.local/errors",
	CrawlIntervalDuration:    120,
	CrawlIntervalUnit:        UnitSeconds,
}
