package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/common/work"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

const (
	findSegment    = "/find"
	profileSegment = "/profile"
)

// Headers that belong to the captured connection, not to the request.
var droppedHeaders = []string{"content-length", "host", "connection", "accept-encoding"}

type profileRequest struct {
	CreatorOecID string `json:"creator_oec_id"`
	ProfileTypes []int  `json:"profile_types"`
}

// ProfileFetcher requests every profile type of a matched creator and merges
// what comes back.
type ProfileFetcher struct {
	client  *resty.Client
	types   []int
	jitter  time.Duration
	timeout time.Duration
}

func NewProfileFetcher(client *resty.Client, cfg config.CrawlConfig) *ProfileFetcher {
	return &ProfileFetcher{
		client:  client,
		types:   append([]int(nil), cfg.ProfileTypes...),
		jitter:  cfg.ProfileJitter,
		timeout: cfg.ProfileTimeout,
	}
}

// FetchProfiles sends one request per profile type in random order and waits
// for all of them. Failed types are dropped; None means none succeeded.
func (f *ProfileFetcher) FetchProfiles(ctx context.Context, stub CreatorStub, evt InterceptedEvent) mo.Option[CreatorRecord] {
	endpoint, err := ProfileURL(evt.Payload.URL)
	if err != nil {
		log.Error().Err(err).Str("creatorID", stub.Handle).Msg("Cannot derive profile endpoint")
		return mo.None[CreatorRecord]()
	}
	headers := profileHeaders(evt.Payload.RequestHeaders)

	types := lo.Shuffle(append([]int(nil), f.types...))
	tasks := make([]work.Executor[map[string]any], 0, len(types))
	for _, profileType := range types {
		profileType := profileType
		task, err := work.NewTask(
			func(ctx context.Context) (map[string]any, error) {
				if err := sleep(ctx, f.jitter); err != nil {
					return nil, err
				}
				return f.fetchOne(ctx, endpoint, headers, stub.ID, profileType)
			},
			work.WithID[map[string]any](fmt.Sprintf("profile-%s-%d", stub.Handle, profileType)),
			work.WithErrorHandler[map[string]any](func(err error) {
				log.Error().Err(err).
					Str("creatorID", stub.Handle).
					Int("profileType", profileType).
					Msg("Error fetching profile of creator")
			}),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create profile task")
			continue
		}
		tasks = append(tasks, task)
	}

	results, err := work.RunAll(ctx, "profiles-"+stub.Handle, f.timeout+f.jitter, tasks)
	if err != nil {
		log.Warn().Err(err).Str("creatorID", stub.Handle).Msg("Profile fan-out interrupted")
	}

	var profiles map[string]any
	succeeded := 0
	for _, res := range results {
		if !res.IsSuccess() {
			continue
		}
		succeeded++
		profiles = DeepMerge(profiles, res.Result)
	}
	if succeeded == 0 {
		log.Warn().Str("creatorID", stub.Handle).Msg("Profiles not found for creator")
		return mo.None[CreatorRecord]()
	}

	return mo.Some(CreatorRecord{
		ID:          stub.ID,
		Handle:      stub.Handle,
		DisplayName: stub.DisplayName,
		Profiles:    profiles,
	})
}

func (f *ProfileFetcher) fetchOne(ctx context.Context, endpoint string, headers map[string]string, creatorID string, profileType int) (map[string]any, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(profileRequest{CreatorOecID: creatorID, ProfileTypes: []int{profileType}}).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("requesting profile type %d: %w", profileType, err)
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode())
	}

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(resp.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding profile type %d: %w", profileType, err)
	}
	if !envelopeOK(body) {
		return nil, fmt.Errorf("%w: code: %v, message: %v", ErrProfileEnvelope, body["code"], body["message"])
	}
	return NormalizeProfile(body), nil
}

// envelopeOK reports code == 0 and message == "success".
func envelopeOK(body map[string]any) bool {
	var code int64 = -1
	switch c := body["code"].(type) {
	case json.Number:
		if n, err := c.Int64(); err == nil {
			code = n
		}
	case float64:
		code = int64(c)
	}
	msg, _ := body["message"].(string)
	return code == 0 && msg == "success"
}

// ProfileURL swaps the terminal /find segment of a search URL for /profile.
// The query string is kept.
func ProfileURL(searchURL string) (string, error) {
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("parsing search url: %w", err)
	}
	idx := strings.LastIndex(u.Path, findSegment)
	if idx < 0 {
		return "", fmt.Errorf("search url %q has no %s segment", searchURL, findSegment)
	}
	u.Path = u.Path[:idx] + profileSegment + u.Path[idx+len(findSegment):]
	u.RawPath = ""
	return u.String(), nil
}

func profileHeaders(captured map[string]string) map[string]string {
	return lo.OmitBy(captured, func(k string, _ string) bool {
		return lo.Contains(droppedHeaders, strings.ToLower(k)) || strings.EqualFold(k, "content-type")
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
