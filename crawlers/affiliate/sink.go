package affiliate

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// SinkPublisher posts records to the external endpoints. It never retries.
type SinkPublisher struct {
	client *resty.Client
}

func NewSinkPublisher(client *resty.Client) *SinkPublisher {
	return &SinkPublisher{client: client}
}

func (p *SinkPublisher) PublishCreators(ctx context.Context, cfg SinkConfig, records ...CreatorRecord) error {
	if cfg.DataEndpoint == "" {
		log.Warn().Msg("Cannot post creator data: no endpoint configured")
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	log.Info().Int("count", len(records)).Msg("Posting creator data to sink")
	return p.post(ctx, cfg, cfg.DataEndpoint, records)
}

func (p *SinkPublisher) PublishErrors(ctx context.Context, cfg SinkConfig, errs ...CrawlError) error {
	if cfg.ErrorEndpoint == "" {
		log.Warn().Msg("Cannot post creator error: no endpoint configured")
		return nil
	}
	if len(errs) == 0 {
		return nil
	}
	log.Info().Int("count", len(errs)).Msg("Posting creator errors to sink")
	return p.post(ctx, cfg, cfg.ErrorEndpoint, errs)
}

// post always sends a JSON array.
func (p *SinkPublisher) post(ctx context.Context, cfg SinkConfig, endpoint string, body any) error {
	req := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if cfg.AuthHeaderName != "" && cfg.AuthHeaderValue != "" {
		req.SetHeader(cfg.AuthHeaderName, cfg.AuthHeaderValue)
	}

	resp, err := req.Post(endpoint)
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Error posting to sink")
		return fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("endpoint", endpoint).Msg("Sink rejected records")
		return fmt.Errorf("posting to %s: status %d", endpoint, resp.StatusCode())
	}
	return nil
}
