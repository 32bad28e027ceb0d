// Package affiliate drives the creator-search page of the affiliate center:
// it searches one creator handle at a time, correlates the intercepted search
// responses to that handle, fetches the creator profiles and records the
// outcome in the key-value store.
package affiliate

import (
	"errors"
)

// Error codes sent to the error sink.
const (
	CodeCreatorNotFound      = "CREATOR_NOT_FOUND"
	CodeCreatorHasNoProfiles = "CREATOR_HAS_NO_PROFILES"
)

const (
	notFoundMessage         = "Creator potentially not found in affiliate system"
	hasNoProfilesMessageFmt = "Creator '%s' has no profiles."
	fetchDataEventType      = "fetch_data"
)

var (
	ErrSinkNotConfigured   = errors.New("sink endpoints are not configured")
	ErrSearchInputNotFound = errors.New("search input field not found")
	ErrAlreadyCrawling     = errors.New("a crawl is already in progress")
	ErrNothingToResume     = errors.New("no persisted crawl to resume")
	ErrNoCreatorIDs        = errors.New("no creator ids given")
	ErrProfileEnvelope     = errors.New("profile response envelope reports failure")
	ErrNothingToExport     = errors.New("no data to export")
)

// CreatorRecord is one crawled creator. JSON names follow the records already
// stored by earlier releases.
type CreatorRecord struct {
	ID          string         `json:"id"`
	Handle      string         `json:"uniqueId"`
	DisplayName string         `json:"nickname"`
	Profiles    map[string]any `json:"profiles"`
}

// CreatorStub is the matched entry of a search response.
type CreatorStub struct {
	ID          string
	Handle      string
	DisplayName string
}

// CrawlError is the body item posted to the error sink.
type CrawlError struct {
	Data    map[string]any `json:"data"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

func newCrawlError(creatorID, code, message string) CrawlError {
	return CrawlError{
		Data:    map[string]any{"creator_id": creatorID},
		Code:    code,
		Message: message,
	}
}

// EventPayload is what the interceptor captured from one search call.
type EventPayload struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Query           map[string]string `json:"query"`
	Status          int               `json:"status"`
	RequestHeaders  map[string]string `json:"requestHeaders"`
	RequestPayload  string            `json:"requestPayload,omitempty"`
	ResponsePayload map[string]any    `json:"responsePayload"`
}

// InterceptedEvent is emitted once per first-page search response.
type InterceptedEvent struct {
	Type    string       `json:"type"`
	Payload EventPayload `json:"payload"`
}

func NewFetchDataEvent(payload EventPayload) InterceptedEvent {
	return InterceptedEvent{Type: fetchDataEventType, Payload: payload}
}

// SinkConfig is read from the config scope when a session starts and stays
// fixed for the session.
type SinkConfig struct {
	DataEndpoint    string `json:"dataEndpoint,omitempty"`
	ErrorEndpoint   string `json:"errorEndpoint,omitempty"`
	AuthHeaderName  string `json:"authHeaderName,omitempty"`
	AuthHeaderValue string `json:"authHeaderValue,omitempty"`
}

func (c SinkConfig) configured() bool {
	return c.DataEndpoint != "" || c.ErrorEndpoint != ""
}

// StartCommand carries START_CRAWLING.
type StartCommand struct {
	UseAPI     bool     `json:"useApi"`
	CreatorIDs []string `json:"creatorIds" validate:"required,min=1,dive,required"`
	// StartTime is in unix milliseconds. Zero means now.
	StartTime int64 `json:"startTime" validate:"gte=0"`
}

// Summary describes a completed session.
type Summary struct {
	RunID           string   `json:"runId"`
	Total           int      `json:"total"`
	Found           int      `json:"found"`
	NotFound        []string `json:"notFound"`
	DurationSeconds int64    `json:"durationSeconds"`
	UseAPI          bool     `json:"useApi"`
}

// Status is a consistent snapshot of the orchestrator.
type Status struct {
	State        string   `json:"state"`
	Active       bool     `json:"isCrawling"`
	RunID        string   `json:"runId,omitempty"`
	CurrentID    string   `json:"currentCreatorId,omitempty"`
	Cursor       int      `json:"currentCreatorIndex"`
	Total        int      `json:"total"`
	ProcessCount int      `json:"processCount"`
	NotFound     []string `json:"notFoundCreators"`
	Progress     float64  `json:"progress"`
	CanContinue  bool     `json:"canContinue"`
	UseAPI       bool     `json:"useApi"`
}
