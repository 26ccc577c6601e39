package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/url"
	"time"
)

// GetUser fetches a TikTok user profile via SSR HTML parsing.
// This is pure HTTP; no browser or login required.
func (s *Scraper) GetUser(ctx context.Context, username string) (Author, error) {
	if username == "" {
		return Author{}, fmt.Errorf("get user: username is required")
	}

	totalStart := time.Now()
	profileURL := s.baseURL + "/@" + username

	delayStart := time.Now()
	s.waitForProfile()
	delayDur := time.Since(delayStart)

	httpStart := time.Now()
	resp, err := s.doRequest(ctx, "GET", profileURL, nil)
	if err != nil {
		return Author{}, fmt.Errorf("get user %q: %w", username, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Author{}, fmt.Errorf("read user page %q: %w", username, err)
	}
	httpDur := time.Since(httpStart)

	parseStart := time.Now()
	data, err := extractUniversalData(body)
	if err != nil {
		return Author{}, fmt.Errorf("parse user page %q: %w", username, err)
	}

	author, err := extractUserFromSSR(data)
	if err != nil {
		return Author{}, fmt.Errorf("extract user %q: %w", username, err)
	}
	parseDur := time.Since(parseStart)

	perfLog("GetUser: user=%s delay=%v http=%v parse=%v total=%v body=%d bytes",
		username, delayDur, httpDur, parseDur, time.Since(totalStart), len(body))

	return author, nil
}

// UserVideos streams the videos posted by a user. The user's secUid comes
// from the profile page and is cached.
func (s *Scraper) UserVideos(ctx context.Context, username string, count int) iter.Seq2[Video, error] {
	if username == "" {
		return failed(fmt.Errorf("user videos: username is required"))
	}
	return func(yield func(Video, error) bool) {
		if count <= 0 {
			return
		}
		secUID, err := s.cachedLookup("secuid:"+username, func() (string, error) {
			author, err := s.GetUser(ctx, username)
			if err != nil {
				return "", err
			}
			if author.SecUID == "" {
				return "", fmt.Errorf("%w: secUid missing for %q", ErrInvalidResponse, username)
			}
			return author.SecUID, nil
		})
		if err != nil {
			yield(Video{}, fmt.Errorf("resolve user %q: %w", username, err))
			return
		}
		seq := paginate(ctx, count, func(ctx context.Context, cursor int64) ([]json.RawMessage, int64, bool, error) {
			return s.fetchUserVideos(ctx, secUID, cursor)
		})
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (s *Scraper) fetchUserVideos(ctx context.Context, secUID string, cursor int64) ([]json.RawMessage, int64, bool, error) {
	rawURL := fmt.Sprintf(
		"%s/api/post/item_list/?secUid=%s&count=35&cursor=%d",
		s.baseURL, url.QueryEscape(secUID), cursor,
	)

	var result itemListResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return nil, 0, false, fmt.Errorf("fetch user page: %w", err)
	}
	return result.ItemList, int64(result.Cursor), result.HasMore, nil
}
