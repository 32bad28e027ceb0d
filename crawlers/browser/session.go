package browser

import (
	"context"
	"fmt"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Session owns the Chrome tab the crawler works in.
type Session struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	interceptor *Interceptor
	driver      *SearchDriver
}

// Open launches Chrome, or attaches to cfg.ControlURL, opens the creator
// search page and installs the interceptor before the first navigation.
func Open(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	s := &Session{}

	controlURL, err := s.controlURL(cfg)
	if err != nil {
		return nil, err
	}

	s.browser = rod.New().ControlURL(controlURL).Context(ctx)
	if err := s.browser.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	s.page, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening page: %w", err)
	}

	s.interceptor, err = Intercept(ctx, s.page, cfg.FindPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("installing interceptor: %w", err)
	}

	if err := s.page.Navigate(cfg.StartURL); err != nil {
		s.Close()
		return nil, fmt.Errorf("navigating to %s: %w", cfg.StartURL, err)
	}
	if err := s.page.WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", cfg.StartURL).Msg("Start page did not finish loading")
	}

	s.driver = NewSearchDriver(s.page, cfg.SearchSelector, cfg.ElementTimeout)
	log.Info().Str("url", cfg.StartURL).Bool("attached", cfg.ControlURL != "").Msg("Browser session ready")
	return s, nil
}

func (s *Session) controlURL(cfg config.BrowserConfig) (string, error) {
	if cfg.ControlURL != "" {
		u, err := launcher.ResolveURL(cfg.ControlURL)
		if err != nil {
			return "", fmt.Errorf("resolving browser control url: %w", err)
		}
		return u, nil
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launching browser: %w", err)
	}
	s.launcher = l
	return u, nil
}

func (s *Session) Driver() *SearchDriver {
	return s.driver
}

func (s *Session) Interceptor() *Interceptor {
	return s.interceptor
}

// Close stops the interceptor and the browser. An attached browser is left
// running; only the tab is closed.
func (s *Session) Close() {
	if s.interceptor != nil {
		if err := s.interceptor.Stop(); err != nil {
			log.Debug().Err(err).Msg("Failed to stop interceptor")
		}
	}
	if s.launcher == nil && s.page != nil {
		if err := s.page.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close page")
		}
		return
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close browser")
		}
	}
	s.cleanup()
}

func (s *Session) cleanup() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}
