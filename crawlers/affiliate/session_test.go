package affiliate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchBody(entries ...map[string]any) map[string]any {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	return map[string]any{
		"code":                 0,
		"creator_profile_list": list,
		"next_pagination":      map[string]any{"next_page": 1},
	}
}

func creatorEntry(handle, oecID, nickname string) map[string]any {
	return map[string]any{
		"handle":         map[string]any{"value": handle},
		"creator_oecuid": map[string]any{"value": oecID},
		"nickname":       map[string]any{"value": nickname},
	}
}

func fetchEvent(body map[string]any) InterceptedEvent {
	return NewFetchDataEvent(EventPayload{
		URL:             "https://affiliate.example.com/api/v1/oec/affiliate/creator/marketplace/find?shop_region=VN",
		Method:          "POST",
		Status:          200,
		ResponsePayload: body,
	})
}

func armedSession(t *testing.T, ids ...string) (*Session, uint64) {
	t.Helper()
	var s Session
	s.Begin(ids, false, SinkConfig{}, 1000)
	_, ok := s.BeginSearch()
	require.True(t, ok)
	return &s, s.Arm()
}

func TestSessionBegin(t *testing.T) {
	var s Session
	s.Begin([]string{"alice", "bob"}, true, SinkConfig{DataEndpoint: "http://sink"}, 42)

	assert.True(t, s.Active)
	assert.Equal(t, StateSearching, s.State())
	assert.Equal(t, 0, s.Cursor)
	assert.Empty(t, s.NotFound)
	assert.EqualValues(t, 1, s.Generation())

	id, ok := s.Current()
	assert.True(t, ok)
	assert.Equal(t, "alice", id)
}

func TestSessionCorrelate(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want DecisionKind
	}{
		{
			name: "match",
			body: searchBody(creatorEntry("someone", "1", "Someone"), creatorEntry("alice", "7001", "Alice")),
			want: DecisionMatch,
		},
		{
			name: "no match",
			body: searchBody(creatorEntry("alicex", "1", "Alice X")),
			want: DecisionNoMatch,
		},
		{
			name: "empty list",
			body: searchBody(),
			want: DecisionNoMatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, token := armedSession(t, "alice", "bob")
			d := s.Correlate(fetchEvent(tt.body))
			assert.Equal(t, tt.want, d.Kind)
			assert.Equal(t, "alice", d.ID)
			assert.Equal(t, token, d.Token)
		})
	}
}

func TestSessionCorrelateMatchCarriesStub(t *testing.T) {
	s, _ := armedSession(t, "alice")
	d := s.Correlate(fetchEvent(searchBody(creatorEntry("alice", "7001", "Alice"))))

	require.Equal(t, DecisionMatch, d.Kind)
	assert.Equal(t, CreatorStub{ID: "7001", Handle: "alice", DisplayName: "Alice"}, d.Stub)
	assert.Equal(t, StateFetchingProfiles, s.State())
}

func TestSessionCorrelateIgnores(t *testing.T) {
	t.Run("wrong type", func(t *testing.T) {
		s, _ := armedSession(t, "alice")
		evt := fetchEvent(searchBody(creatorEntry("alice", "1", "A")))
		evt.Type = "other"
		assert.Equal(t, DecisionIgnore, s.Correlate(evt).Kind)
	})

	t.Run("inactive", func(t *testing.T) {
		s, _ := armedSession(t, "alice")
		s.Pause()
		assert.Equal(t, DecisionIgnore, s.Correlate(fetchEvent(searchBody(creatorEntry("alice", "1", "A")))).Kind)
	})

	t.Run("second match for the same target", func(t *testing.T) {
		s, _ := armedSession(t, "alice")
		evt := fetchEvent(searchBody(creatorEntry("alice", "1", "A")))
		require.Equal(t, DecisionMatch, s.Correlate(evt).Kind)
		assert.Equal(t, DecisionIgnore, s.Correlate(evt).Kind)
	})

	t.Run("before the search was armed", func(t *testing.T) {
		var s Session
		s.Begin([]string{"alice"}, false, SinkConfig{}, 0)
		assert.Equal(t, DecisionIgnore, s.Correlate(fetchEvent(searchBody(creatorEntry("alice", "1", "A")))).Kind)
	})
}

func TestSessionLateMatchAfterNoMatch(t *testing.T) {
	s, _ := armedSession(t, "alice")
	require.Equal(t, DecisionNoMatch, s.Correlate(fetchEvent(searchBody())).Kind)
	assert.Equal(t, DecisionMatch, s.Correlate(fetchEvent(searchBody(creatorEntry("alice", "1", "A")))).Kind)
}

func TestSessionAdvance(t *testing.T) {
	t.Run("timeout without response marks not found", func(t *testing.T) {
		s, token := armedSession(t, "alice", "bob")
		res, ok := s.Advance(token)
		require.True(t, ok)
		assert.Equal(t, "alice", res.ID)
		assert.True(t, res.TimedOut)
		assert.False(t, res.Finished)
		assert.Equal(t, []string{"alice"}, s.NotFound)
		assert.Equal(t, 1, s.Cursor)
		assert.Equal(t, StateSearching, s.State())
	})

	t.Run("answered window does not mark not found", func(t *testing.T) {
		s, token := armedSession(t, "alice")
		s.Correlate(fetchEvent(searchBody(creatorEntry("alice", "1", "A"))))
		res, ok := s.Advance(token)
		require.True(t, ok)
		assert.False(t, res.TimedOut)
		assert.True(t, res.Finished)
		assert.Empty(t, s.NotFound)
		assert.Equal(t, StateFinishing, s.State())
	})

	t.Run("stale token is rejected", func(t *testing.T) {
		s, token := armedSession(t, "alice", "bob")
		_, ok := s.Advance(token)
		require.True(t, ok)
		_, ok = s.Advance(token)
		assert.False(t, ok)
		assert.Equal(t, 1, s.Cursor)
	})

	t.Run("paused session is rejected", func(t *testing.T) {
		s, token := armedSession(t, "alice", "bob")
		s.Pause()
		_, ok := s.Advance(token)
		assert.False(t, ok)
		assert.Equal(t, 0, s.Cursor)
	})
}

func TestSessionPauseIsIdempotent(t *testing.T) {
	s, _ := armedSession(t, "alice", "bob")
	assert.True(t, s.Pause())
	assert.False(t, s.Pause())
	assert.Equal(t, StatePaused, s.State())
	assert.Equal(t, []string{"alice", "bob"}, s.TargetIDs)
}

func TestSessionRestore(t *testing.T) {
	tests := []struct {
		name       string
		persisted  LocalState
		wantCursor int
		wantState  State
	}{
		{
			name:       "mid crawl",
			persisted:  LocalState{CreatorIDs: []string{"a", "b", "c"}, CurrentCreatorIndex: 1},
			wantCursor: 1,
			wantState:  StatePaused,
		},
		{
			name:       "cursor past the end is clamped",
			persisted:  LocalState{CreatorIDs: []string{"a", "b"}, CurrentCreatorIndex: 9},
			wantCursor: 2,
			wantState:  StateIdle,
		},
		{
			name:       "negative cursor",
			persisted:  LocalState{CreatorIDs: []string{"a"}, CurrentCreatorIndex: -3},
			wantCursor: 0,
			wantState:  StatePaused,
		},
		{
			name:       "empty",
			persisted:  LocalState{},
			wantCursor: 0,
			wantState:  StateIdle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Session
			s.Restore(tt.persisted)
			assert.False(t, s.Active)
			assert.Equal(t, tt.wantCursor, s.Cursor)
			assert.Equal(t, tt.wantState, s.State())
		})
	}
}

func TestSessionRestoreDeduplicatesNotFound(t *testing.T) {
	var s Session
	s.Restore(LocalState{CreatorIDs: []string{"a", "b"}, NotFoundCreators: []string{"a", "a", "b"}})
	assert.Equal(t, []string{"a", "b"}, s.NotFound)
}

func TestSessionResume(t *testing.T) {
	var s Session
	s.Resume(LocalState{CreatorIDs: []string{"a", "b", "c"}, CurrentCreatorIndex: 2, UseAPI: true}, SinkConfig{DataEndpoint: "http://sink"})
	assert.True(t, s.Active)
	assert.Equal(t, StateSearching, s.State())
	assert.True(t, s.UseSink)
	assert.Equal(t, "http://sink", s.Sink.DataEndpoint)

	var done Session
	done.Resume(LocalState{CreatorIDs: []string{"a"}, CurrentCreatorIndex: 1}, SinkConfig{})
	assert.Equal(t, StateFinishing, done.State())
}

func TestSessionReconcile(t *testing.T) {
	var s Session
	s.Begin([]string{"a", "b", "c"}, false, SinkConfig{}, 0)
	s.MarkNotFound("a")
	s.MarkNotFound("b")
	assert.False(t, s.MarkNotFound("a"))

	got := s.Reconcile([]CreatorRecord{{Handle: "a"}, {Handle: "c"}})
	assert.Equal(t, []string{"b"}, got)
}

func TestSessionProgressAndCanContinue(t *testing.T) {
	var s Session
	assert.Zero(t, s.Progress())
	assert.False(t, s.CanContinue())

	s.Begin([]string{"a", "b", "c", "d"}, false, SinkConfig{}, 0)
	s.Cursor = 1
	assert.Equal(t, 25.0, s.Progress())
	assert.False(t, s.CanContinue())

	s.Pause()
	assert.True(t, s.CanContinue())

	s.Cursor = 4
	assert.False(t, s.CanContinue())
}

func TestSessionResetStartsNewGeneration(t *testing.T) {
	var s Session
	s.Begin([]string{"a"}, true, SinkConfig{}, 0)
	gen := s.Generation()
	s.Reset()
	assert.Greater(t, s.Generation(), gen)
	assert.False(t, s.Active)
	assert.Empty(t, s.TargetIDs)
	assert.Equal(t, StateIdle, s.State())
}
