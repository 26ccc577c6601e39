//go:build unittest

package tiktok

import "fmt"

func (s *Scraper) InitBrowser() error {
	return fmt.Errorf("browser: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (s *Scraper) launchBrowser() error {
	return fmt.Errorf("browser: %w (build tag: unittest)", ErrBrowserNotReady)
}

func (s *Scraper) setupResourceBlocking() {}

func (s *Scraper) signURL(rawURL string) (string, error) {
	return "", ErrBrowserNotReady
}

func (s *Scraper) browserFetch(rawURL string) ([]byte, error) {
	return nil, ErrBrowserNotReady
}

func (s *Scraper) ensureSigningReady() error {
	if s.signingReady.Load() {
		return nil
	}
	return ErrBrowserNotReady
}

func (s *Scraper) closeBrowser() error {
	s.page = nil
	s.browser = nil
	s.signingReady.Store(false)
	return nil
}
