// Package browser drives the affiliate creator-search page in Chrome through
// go-rod. It types handles into the page's search box and captures the search
// API responses the page receives.
package browser

import (
	"bytes"
	"encoding/json"
	"net/url"

	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
)

// capturedRequest is the part of a hijacked request kept in the event.
type capturedRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// parseSearchResponse turns a captured search call into an event. Only
// first-page responses with a JSON object body are reported.
func parseSearchResponse(req capturedRequest, status int, body []byte) (affiliate.InterceptedEvent, bool) {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil {
		return affiliate.InterceptedEvent{}, false
	}
	if !isFirstPage(payload) {
		return affiliate.InterceptedEvent{}, false
	}

	return affiliate.NewFetchDataEvent(affiliate.EventPayload{
		URL:             req.URL,
		Method:          req.Method,
		Query:           queryOf(req.URL),
		Status:          status,
		RequestHeaders:  req.Headers,
		RequestPayload:  req.Body,
		ResponsePayload: payload,
	}), true
}

func isFirstPage(payload map[string]any) bool {
	pagination, ok := payload["next_pagination"].(map[string]any)
	if !ok {
		return false
	}
	switch v := pagination["next_page"].(type) {
	case json.Number:
		n, err := v.Int64()
		return err == nil && n == 1
	case float64:
		return v == 1
	}
	return false
}

func queryOf(rawURL string) map[string]string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(u.Query()))
	for k, v := range u.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
