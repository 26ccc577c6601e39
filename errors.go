package tiktok

import "errors"

var (
	ErrRateLimited     = errors.New("tiktok: rate limited")
	ErrNotFound        = errors.New("tiktok: not found")
	ErrAuthRequired    = errors.New("tiktok: authentication required")
	ErrCaptcha         = errors.New("tiktok: captcha required")
	ErrSigningFailed   = errors.New("tiktok: url signing failed")
	ErrBrowserNotReady = errors.New("tiktok: browser not initialized")
	ErrInvalidResponse = errors.New("tiktok: invalid response")

	// ErrMalformedItem marks a single list entry that could not be decoded or
	// lacks the fields needed to reference it. Streams keep going after it.
	ErrMalformedItem     = errors.New("tiktok: malformed item")
	ErrUnsupportedEntity = errors.New("tiktok: unsupported entity kind")
	ErrNoSubtitle        = errors.New("tiktok: subtitle payload unavailable")
)
