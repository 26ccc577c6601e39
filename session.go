package tiktok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLookupCacheSize = 256

// SessionConfig configures every session a SessionFactory opens. The ms token
// is passed in explicitly; nothing here reads the environment.
type SessionConfig struct {
	MsToken         string
	Proxy           string
	CookiesPath     string
	Headless        bool
	UseBrowserFetch bool
	SearchDelay     time.Duration
	ProfileDelay    time.Duration
}

// SessionFactory opens signing sessions. Sessions opened by one factory share
// a lookup cache, so a retried collection does not resolve the same hashtag
// again.
type SessionFactory struct {
	cfg     SessionConfig
	logger  *slog.Logger
	lookups *lru.Cache[string, string]

	// launch starts the signing browser. Replaceable for testing.
	launch func(s *Scraper) error
}

// NewSessionFactory validates cfg and returns a factory.
func NewSessionFactory(cfg SessionConfig, logger *slog.Logger) (*SessionFactory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, string](defaultLookupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("lookup cache: %w", err)
	}
	f := &SessionFactory{cfg: cfg, logger: logger, lookups: cache}
	f.launch = func(s *Scraper) error {
		if cfg.CookiesPath != "" {
			return s.LoginWithCookies(cfg.CookiesPath)
		}
		return s.InitBrowser()
	}
	return f, nil
}

// NewScraper returns a browserless scraper with the factory's settings. It is
// enough for profile lookups, video pages and subtitle downloads.
func (f *SessionFactory) NewScraper() (*Scraper, error) {
	s := New().
		WithSearchDelay(f.cfg.SearchDelay).
		WithProfileDelay(f.cfg.ProfileDelay).
		WithHeadless(f.cfg.Headless).
		WithBrowserFetch(f.cfg.UseBrowserFetch).
		WithLogger(f.logger).
		WithLookupCache(f.lookups)

	if err := s.SetProxy(f.cfg.Proxy); err != nil {
		return nil, err
	}
	if f.cfg.MsToken != "" {
		s.SetCookies([]*http.Cookie{{Name: "msToken", Value: f.cfg.MsToken, Domain: ".tiktok.com", Path: "/"}})
		s.SetMsToken(f.cfg.MsToken)
	}
	return s, nil
}

// Open starts a session with a signing browser. The caller must Close it.
// If startup fails midway, whatever was started is released before returning.
func (f *SessionFactory) Open(ctx context.Context) (*Scraper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := f.NewScraper()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	start := time.Now()
	if err := f.launch(s); err != nil {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("open session: %w", err)
	}
	f.logger.Debug("session opened", slog.Duration("took", time.Since(start)))
	return s, nil
}
