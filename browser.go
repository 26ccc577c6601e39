//go:build !unittest

package tiktok

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// signSnippet turns `url` into `signedUrl` using TikTok's frontierSign.
// frontierSign returns either a string or an object like {"X-Bogus": "xxx"}.
const signSnippet = `
	if (typeof window.byted_acrawler === 'undefined') {
		throw new Error('signing function not available');
	}
	const params = window.byted_acrawler.frontierSign(url);
	let signedUrl;
	if (typeof params === 'string') {
		signedUrl = params;
	} else {
		const u = new URL(url);
		for (const [k, v] of Object.entries(params)) {
			u.searchParams.set(k, v);
		}
		signedUrl = u.toString();
	}`

// InitBrowser launches a Chrome instance with stealth mode. The browser stays
// open for the lifetime of the session and is only used for signing.
func (s *Scraper) InitBrowser() error {
	return s.launchBrowser()
}

func (s *Scraper) launchBrowser() error {
	l := launcher.New().Headless(s.headless)
	if s.proxy != "" {
		l = l.Proxy(s.proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create stealth page: %w", err)
	}

	s.browser = browser
	s.page = page

	s.setupResourceBlocking()

	if err := s.page.Navigate(s.baseURL); err != nil {
		return fmt.Errorf("navigate to tiktok: %w", err)
	}
	if err := s.page.WaitStable(2 * time.Second); err != nil {
		return fmt.Errorf("wait for page stable: %w", err)
	}

	s.signingReady.Store(true)
	s.logger.Debug("signing browser ready", slog.Bool("headless", s.headless), slog.String("proxy", s.proxy))

	// Sync browser cookies (including a fresh msToken) to the HTTP client.
	return s.syncCookiesFromBrowser()
}

// setupResourceBlocking drops media and tracking requests; the page is only
// needed for its signing JS.
func (s *Scraper) setupResourceBlocking() {
	router := s.browser.HijackRequests()
	blocked := []string{"*.css", "*.png", "*.jpg", "*.jpeg", "*.webp", "*.mp4", "*.woff*", "*.svg", "*analytics*"}
	for _, pattern := range blocked {
		router.MustAdd(pattern, func(ctx *rod.Hijack) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
	}
	go router.Run()
}

// signURL calls TikTok's frontierSign JS to generate the X-Bogus signature.
// Caller must hold browserMu.
func (s *Scraper) signURL(rawURL string) (string, error) {
	if s.page == nil {
		return "", ErrBrowserNotReady
	}

	if err := s.ensureSigningReady(); err != nil {
		return "", fmt.Errorf("ensure signing ready: %w", err)
	}

	page := s.page.Timeout(5 * time.Second)
	result, err := page.Eval(`(url) => {`+signSnippet+`
		return signedUrl;
	}`, rawURL)
	if err != nil {
		// Next call reloads the page.
		s.signingReady.Store(false)
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return result.Value.String(), nil
}

// browserFetch signs a URL and fetches it inside the browser via JS fetch(),
// so the request carries the browser's TLS fingerprint and cookies.
// Caller must hold browserMu.
func (s *Scraper) browserFetch(rawURL string) ([]byte, error) {
	totalStart := time.Now()

	if s.page == nil {
		return nil, ErrBrowserNotReady
	}

	signingStart := time.Now()
	if err := s.ensureSigningReady(); err != nil {
		return nil, fmt.Errorf("ensure signing ready: %w", err)
	}
	perfLog("browserFetch: ensureSigningReady=%v", time.Since(signingStart))

	page := s.page.Timeout(15 * time.Second)

	evalStart := time.Now()
	result, err := page.Eval(`async (url) => {`+signSnippet+`
		const t0 = Date.now();
		const resp = await fetch(signedUrl, {
			method: 'GET',
			credentials: 'include',
			headers: {'Accept': 'application/json, text/plain, */*'},
		});
		const text = await resp.text();
		return JSON.stringify({body: text, status: resp.status, fetchMs: Date.now() - t0});
	}`, rawURL)
	evalDur := time.Since(evalStart)
	if err != nil {
		s.signingReady.Store(false)
		perfLog("browserFetch: eval FAILED after %v", evalDur)
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	var jsResult struct {
		Body    string `json:"body"`
		Status  int    `json:"status"`
		FetchMs int    `json:"fetchMs"`
	}
	if err := json.Unmarshal([]byte(result.Value.Str()), &jsResult); err != nil {
		return nil, fmt.Errorf("%w: browser fetch result: %v", ErrInvalidResponse, err)
	}

	perfLog("browserFetch: status=%d js_fetch=%dms eval=%v total=%v body=%d bytes",
		jsResult.Status, jsResult.FetchMs, evalDur, time.Since(totalStart), len(jsResult.Body))

	switch jsResult.Status {
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusNotFound:
		return nil, ErrNotFound
	}
	if jsResult.Body == "" {
		return nil, nil
	}
	return []byte(jsResult.Body), nil
}

// ensureSigningReady checks if the signing JS is available, reloading only if
// a previous call failed.
func (s *Scraper) ensureSigningReady() error {
	if s.signingReady.Load() {
		return nil
	}

	result, err := s.page.Timeout(3 * time.Second).Eval(`() => typeof window.byted_acrawler !== 'undefined'`)
	if err != nil || !result.Value.Bool() {
		if err := s.page.Navigate(s.baseURL); err != nil {
			return fmt.Errorf("reload for signing: %w", err)
		}
		if err := s.page.WaitStable(2 * time.Second); err != nil {
			return fmt.Errorf("wait after reload: %w", err)
		}
	}

	s.signingReady.Store(true)
	return nil
}

func (s *Scraper) closeBrowser() error {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.page = nil
			return fmt.Errorf("close page: %w", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.browser = nil
			return fmt.Errorf("close browser: %w", err)
		}
		s.browser = nil
	}
	s.signingReady.Store(false)
	return nil
}
