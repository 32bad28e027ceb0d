package affiliate

import (
	"github.com/samber/lo"
)

type State int

const (
	StateIdle State = iota
	StateSearching
	StateAwaitingResponse
	StateFetchingProfiles
	StatePaused
	StateFinishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateFetchingProfiles:
		return "fetching_profiles"
	case StatePaused:
		return "paused"
	case StateFinishing:
		return "finishing"
	}
	return "unknown"
}

type DecisionKind int

const (
	DecisionIgnore DecisionKind = iota
	DecisionNoMatch
	DecisionMatch
)

// Decision is the outcome of correlating one intercepted event.
type Decision struct {
	Kind DecisionKind
	// ID is the target the event was correlated to.
	ID   string
	Stub CreatorStub
	// Token identifies the search the event belongs to.
	Token uint64
}

// AdvanceResult is returned by a successful Advance.
type AdvanceResult struct {
	// ID is the target whose search window just closed.
	ID string
	// TimedOut reports that no response was correlated to ID, which has been
	// added to NotFound.
	TimedOut bool
	Finished bool
}

// Session is the crawl state machine without any I/O. The orchestrator owns
// the only instance and performs the effects each transition asks for.
type Session struct {
	Active         bool
	StartedAt      int64
	TargetIDs      []string
	Cursor         int
	ProcessedCount int
	NotFound       []string
	UseSink        bool
	Sink           SinkConfig

	state State
	// token changes every time a search window opens or is cancelled. Timers
	// and fetches carry the token they were started under.
	token uint64
	// generation changes on Begin and Reset only, so fetches started before a
	// stop still land after continue.
	generation uint64
	// answered is set once any event was correlated to the current target,
	// matched once one of them carried it.
	answered bool
	matched  bool
}

func (s *Session) State() State { return s.state }

func (s *Session) Token() uint64 { return s.token }

func (s *Session) Generation() uint64 { return s.generation }

// Begin starts a fresh session over ids.
func (s *Session) Begin(ids []string, useSink bool, sink SinkConfig, startedAt int64) {
	generation := s.generation + 1
	token := s.token + 1
	*s = Session{
		Active:     true,
		StartedAt:  startedAt,
		TargetIDs:  append([]string(nil), ids...),
		NotFound:   []string{},
		UseSink:    useSink,
		Sink:       sink,
		state:      StateSearching,
		token:      token,
		generation: generation,
	}
}

// Restore loads a persisted session without activating it. The cursor is
// clamped into range.
func (s *Session) Restore(persisted LocalState) {
	s.Active = false
	s.StartedAt = persisted.StartTime
	s.TargetIDs = append([]string(nil), persisted.CreatorIDs...)
	s.Cursor = lo.Clamp(persisted.CurrentCreatorIndex, 0, len(s.TargetIDs))
	s.ProcessedCount = persisted.ProcessCount
	s.NotFound = lo.Uniq(append([]string{}, persisted.NotFoundCreators...))
	s.UseSink = persisted.UseAPI
	s.answered, s.matched = false, false
	s.token++
	if len(s.TargetIDs) > 0 && !s.Exhausted() {
		s.state = StatePaused
	} else {
		s.state = StateIdle
	}
}

// Resume restores a persisted session and activates it.
func (s *Session) Resume(persisted LocalState, sink SinkConfig) {
	s.Restore(persisted)
	s.Active = true
	s.Sink = sink
	if s.Exhausted() {
		s.state = StateFinishing
	} else {
		s.state = StateSearching
	}
}

// Current returns the target at the cursor.
func (s *Session) Current() (string, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.TargetIDs) {
		return "", false
	}
	return s.TargetIDs[s.Cursor], true
}

func (s *Session) Exhausted() bool {
	return s.Cursor >= len(s.TargetIDs)
}

// BeginSearch counts a search attempt for the current target.
func (s *Session) BeginSearch() (string, bool) {
	id, ok := s.Current()
	if !ok || !s.Active {
		return "", false
	}
	s.state = StateSearching
	s.ProcessedCount++
	s.answered, s.matched = false, false
	return id, true
}

// Arm opens the response window of the current search and returns the token
// the fallback timer must present to Advance.
func (s *Session) Arm() uint64 {
	s.token++
	s.state = StateAwaitingResponse
	return s.token
}

// Advance closes the window identified by token and moves the cursor. Stale
// tokens, inactive sessions and exhausted cursors are rejected so that a
// window can only be advanced once.
func (s *Session) Advance(token uint64) (AdvanceResult, bool) {
	if !s.Active || token != s.token {
		return AdvanceResult{}, false
	}
	if s.state != StateAwaitingResponse && s.state != StateFetchingProfiles {
		return AdvanceResult{}, false
	}
	id, ok := s.Current()
	if !ok {
		return AdvanceResult{}, false
	}

	res := AdvanceResult{ID: id}
	if !s.answered {
		res.TimedOut = s.MarkNotFound(id)
	}

	s.Cursor++
	s.token++
	s.answered, s.matched = false, false
	if s.Exhausted() {
		s.state = StateFinishing
		res.Finished = true
	} else {
		s.state = StateSearching
	}
	return res, true
}

// Correlate attributes evt to the current target. At most one search is in
// flight, so an event either belongs to TargetIDs[Cursor] or is stale.
func (s *Session) Correlate(evt InterceptedEvent) Decision {
	if evt.Type != fetchDataEventType || !s.Active || s.matched {
		return Decision{Kind: DecisionIgnore}
	}
	if s.state != StateAwaitingResponse {
		return Decision{Kind: DecisionIgnore}
	}
	id, ok := s.Current()
	if !ok {
		return Decision{Kind: DecisionIgnore}
	}

	s.answered = true
	stub, found := FindCreator(evt.Payload.ResponsePayload, id)
	if !found {
		return Decision{Kind: DecisionNoMatch, ID: id, Token: s.token}
	}
	s.matched = true
	s.state = StateFetchingProfiles
	return Decision{Kind: DecisionMatch, ID: id, Stub: stub, Token: s.token}
}

// FetchSettled returns the session to waiting for the timer once the fan-out
// started under token has finished.
func (s *Session) FetchSettled(token uint64) {
	if s.token == token && s.state == StateFetchingProfiles {
		s.state = StateAwaitingResponse
	}
}

// MarkNotFound adds id unless it is already present.
func (s *Session) MarkNotFound(id string) bool {
	if lo.Contains(s.NotFound, id) {
		return false
	}
	s.NotFound = append(s.NotFound, id)
	return true
}

// Pause deactivates the session and invalidates the open window. The cursor
// and the target list are kept.
func (s *Session) Pause() bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.token++
	s.state = StatePaused
	return true
}

// Reconcile drops from NotFound every target that ended up crawled anyway.
func (s *Session) Reconcile(crawled []CreatorRecord) []string {
	handles := lo.SliceToMap(crawled, func(r CreatorRecord) (string, struct{}) {
		return r.Handle, struct{}{}
	})
	s.NotFound = lo.Filter(s.NotFound, func(id string, _ int) bool {
		_, ok := handles[id]
		return !ok
	})
	return s.NotFound
}

// Complete ends a finishing session.
func (s *Session) Complete() {
	s.Active = false
	s.token++
	s.state = StateIdle
}

// Reset forgets everything and starts a new generation.
func (s *Session) Reset() {
	*s = Session{
		NotFound:   []string{},
		state:      StateIdle,
		token:      s.token + 1,
		generation: s.generation + 1,
	}
}

// Progress is the share of targets already searched, in percent.
func (s *Session) Progress() float64 {
	if len(s.TargetIDs) == 0 {
		return 0
	}
	return float64(s.Cursor) / float64(len(s.TargetIDs)) * 100
}

func (s *Session) CanContinue() bool {
	return !s.Active && s.Cursor > 0 && s.Cursor < len(s.TargetIDs)
}

func (s *Session) snapshot() Status {
	current, _ := s.Current()
	return Status{
		State:        s.state.String(),
		Active:       s.Active,
		CurrentID:    current,
		Cursor:       s.Cursor,
		Total:        len(s.TargetIDs),
		ProcessCount: s.ProcessedCount,
		NotFound:     append([]string{}, s.NotFound...),
		Progress:     s.Progress(),
		CanContinue:  s.CanContinue(),
		UseAPI:       s.UseSink,
	}
}
