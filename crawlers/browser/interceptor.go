package browser

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const eventBuffer = 16

// Interceptor captures the search API responses of one page and emits the
// first-page ones as events.
type Interceptor struct {
	ctx    context.Context
	page   *rod.Page
	router *rod.HijackRouter
	client *http.Client
	events chan affiliate.InterceptedEvent
}

// Intercept installs the hijack router for every request whose URL contains
// findPath. Events stop when ctx is done or Stop is called.
func Intercept(ctx context.Context, page *rod.Page, findPath string) (*Interceptor, error) {
	i := &Interceptor{
		ctx:    ctx,
		page:   page,
		router: page.HijackRequests(),
		client: &http.Client{Timeout: 30 * time.Second},
		events: make(chan affiliate.InterceptedEvent, eventBuffer),
	}
	if err := i.router.Add("*"+findPath+"*", "", i.handle); err != nil {
		return nil, err
	}
	go i.router.Run()
	log.Info().Str("pattern", findPath).Msg("Search response interceptor installed")
	return i, nil
}

// Events is consumed by the orchestrator's event pump.
func (i *Interceptor) Events() <-chan affiliate.InterceptedEvent {
	return i.events
}

func (i *Interceptor) Stop() error {
	return i.router.Stop()
}

func (i *Interceptor) handle(h *rod.Hijack) {
	req := capturedRequest{
		URL:     h.Request.URL().String(),
		Method:  h.Request.Method(),
		Headers: headerMap(h.Request.Req().Header),
		Body:    h.Request.Body(),
	}

	if err := h.LoadResponse(i.client, true); err != nil {
		log.Warn().Err(err).Str("url", req.URL).Msg("Failed to load intercepted response, passing it through")
		h.ContinueRequest(&proto.FetchContinueRequest{})
		return
	}

	if _, ok := lo.FindKeyBy(req.Headers, func(k, _ string) bool { return strings.EqualFold(k, "cookie") }); !ok {
		if cookie := i.cookieHeader(req.URL); cookie != "" {
			req.Headers["Cookie"] = cookie
		}
	}

	evt, ok := parseSearchResponse(req, h.Response.Payload().ResponseCode, []byte(h.Response.Body()))
	if !ok {
		return
	}
	select {
	case i.events <- evt:
	case <-i.ctx.Done():
	}
}

// cookieHeader returns the page cookies for rawURL. The hijacked request does
// not carry them, but the profile calls replayed outside the browser need them.
func (i *Interceptor) cookieHeader(rawURL string) string {
	cookies, err := i.page.Cookies([]string{rawURL})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read page cookies")
		return ""
	}
	return strings.Join(lo.Map(cookies, func(c *proto.NetworkCookie, _ int) string {
		return c.Name + "=" + c.Value
	}), "; ")
}

func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
