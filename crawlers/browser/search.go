package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/rs/zerolog/log"
)

// SearchDriver types a handle into the creator search box and submits it.
type SearchDriver struct {
	page     *rod.Page
	selector string
	timeout  time.Duration
}

func NewSearchDriver(page *rod.Page, selector string, timeout time.Duration) *SearchDriver {
	return &SearchDriver{page: page, selector: selector, timeout: timeout}
}

// Search replaces the content of the search box with id and presses Enter.
// It returns affiliate.ErrSearchInputNotFound when the box does not show up
// within the element timeout.
func (d *SearchDriver) Search(ctx context.Context, id string) error {
	page := d.page.Context(ctx).Timeout(d.timeout)
	defer page.CancelTimeout()

	el, err := page.Element(d.selector)
	if err != nil {
		log.Error().Err(err).Str("selector", d.selector).Msg("Search input field not found")
		return fmt.Errorf("%w: %s", affiliate.ErrSearchInputNotFound, err.Error())
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("selecting search text: %w", err)
	}
	if err := el.Input(id); err != nil {
		return fmt.Errorf("typing creator id: %w", err)
	}
	if err := el.Type(input.Enter); err != nil {
		return fmt.Errorf("submitting search: %w", err)
	}
	log.Debug().Str("creatorID", id).Msg("Search submitted")
	return nil
}
