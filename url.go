package tiktok

import (
	"fmt"
	"net/url"
	"strings"
)

const videoURLPrefix = "https://www.tiktok.com/@"

// VideoURL builds the canonical reference for a video from the author handle
// and video id. Two references are the same video only if the strings match.
func VideoURL(handle, id string) string {
	return videoURLPrefix + handle + "/video/" + id
}

// ParseVideoURL extracts the author handle and video id from a video URL.
// Query strings and trailing slashes are ignored.
func ParseVideoURL(raw string) (handle, id string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse video url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "@") || parts[1] != "video" || parts[2] == "" {
		return "", "", fmt.Errorf("not a video url: %q", raw)
	}
	return strings.TrimPrefix(parts[0], "@"), parts[2], nil
}
