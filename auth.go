//go:build !unittest

package tiktok

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Login automates TikTok login via the browser. After login, cookies are
// synced to the HTTP client for subsequent API requests.
func (s *Scraper) Login(username, password string) error {
	if s.browser == nil {
		if err := s.launchBrowser(); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	if err := s.page.Navigate(s.baseURL + "/login/phone-or-email/email"); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	if err := s.page.WaitStable(2 * time.Second); err != nil {
		return fmt.Errorf("wait for login page: %w", err)
	}

	fields := []struct {
		selector, value, what string
	}{
		{`input[name="username"]`, username, "username"},
		{`input[type="password"]`, password, "password"},
	}
	for _, f := range fields {
		el, err := s.page.Element(f.selector)
		if err != nil {
			return fmt.Errorf("find %s input: %w", f.what, err)
		}
		if err := el.Input(f.value); err != nil {
			return fmt.Errorf("type %s: %w", f.what, err)
		}
	}

	loginBtn, err := s.page.Element(`button[type="submit"]`)
	if err != nil {
		return fmt.Errorf("find login button: %w", err)
	}
	if err := loginBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click login: %w", err)
	}

	if err := s.page.WaitStable(5 * time.Second); err != nil {
		return fmt.Errorf("wait after login: %w", err)
	}

	if err := s.syncCookiesFromBrowser(); err != nil {
		return err
	}
	s.logger.Info("logged in", slog.String("user", username))
	return nil
}

// syncCookiesFromBrowser copies browser cookies to the HTTP client's cookie jar.
func (s *Scraper) syncCookiesFromBrowser() error {
	cookies, err := s.page.Cookies([]string{s.baseURL})
	if err != nil {
		return fmt.Errorf("get browser cookies: %w", err)
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		httpCookies = append(httpCookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: time.Unix(int64(c.Expires), 0),
		})
	}

	s.SetCookies(httpCookies)
	s.isLogged = true
	return nil
}

// LoginWithCookies loads saved cookies and initializes the browser for signing.
func (s *Scraper) LoginWithCookies(path string) error {
	if err := s.LoadCookies(path); err != nil {
		return fmt.Errorf("login with cookies: %w", err)
	}

	if s.browser == nil {
		if err := s.launchBrowser(); err != nil {
			return fmt.Errorf("init browser for signing: %w", err)
		}
	}

	// Mirror cookies into the page so signing runs with the auth context.
	params := make([]*proto.NetworkCookieParam, 0, len(s.GetCookies()))
	for _, c := range s.GetCookies() {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: ".tiktok.com",
			Path:   "/",
		})
	}
	if err := s.page.SetCookies(params); err != nil {
		return fmt.Errorf("set browser cookies: %w", err)
	}

	return nil
}
