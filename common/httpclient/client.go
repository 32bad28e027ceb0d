// Package httpclient builds the resty clients used for outbound calls.
package httpclient

import (
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// New returns a client that logs every exchange at debug level under name.
func New(name string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", common.AppName)
	Instrument(client, name)
	return client
}

// Instrument attaches request logging to client.
func Instrument(client *resty.Client, name string) {
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		log.Debug().
			Str("client", name).
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("start request")
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		log.Debug().
			Str("client", name).
			Str("method", res.Request.Method).
			Str("url", res.Request.URL).
			Int("status", res.StatusCode()).
			Dur("duration", res.Time()).
			Msg("end request")
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		log.Debug().
			Err(err).
			Str("client", name).
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("request failed")
	})
}
