package tiktok

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
)

// pageFunc fetches one page of raw list entries starting at cursor.
type pageFunc func(ctx context.Context, cursor int64) (items []json.RawMessage, next int64, hasMore bool, err error)

// paginate turns a cursor API into a lazy video stream. At most count valid
// videos are yielded. A malformed entry yields ErrMalformedItem and the stream
// continues; a page error is yielded once and ends the stream.
func paginate(ctx context.Context, count int, fetch pageFunc) iter.Seq2[Video, error] {
	return func(yield func(Video, error) bool) {
		if count <= 0 {
			return
		}
		yielded := 0
		var cursor int64
		for {
			if err := ctx.Err(); err != nil {
				yield(Video{}, err)
				return
			}
			items, next, hasMore, err := fetch(ctx, cursor)
			if err != nil {
				yield(Video{}, err)
				return
			}
			for _, raw := range items {
				v, err := decodeVideo(raw)
				if !yield(v, err) {
					return
				}
				if err == nil {
					yielded++
					if yielded >= count {
						return
					}
				}
			}
			if !hasMore || len(items) == 0 || next == cursor {
				return
			}
			cursor = next
		}
	}
}

// failed is a stream that yields a single error.
func failed(err error) iter.Seq2[Video, error] {
	return func(yield func(Video, error) bool) {
		yield(Video{}, err)
	}
}

// collectVideos drains a stream, skipping malformed entries.
func collectVideos(seq iter.Seq2[Video, error]) ([]Video, error) {
	var out []Video
	for v, err := range seq {
		if errors.Is(err, ErrMalformedItem) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Videos streams up to count videos for an entity. For EntityUser the value is
// a username, for EntityVideoRelated a video URL or id, for EntityHashtag a tag
// without '#', for EntityKeyword free text.
func (s *Scraper) Videos(ctx context.Context, kind EntityKind, value string, count int) iter.Seq2[Video, error] {
	switch kind {
	case EntityHashtag:
		return s.HashtagVideos(ctx, value, count)
	case EntityUser:
		return s.UserVideos(ctx, value, count)
	case EntityVideoRelated:
		return s.RelatedVideos(ctx, value, count)
	case EntityKeyword:
		return s.KeywordVideos(ctx, value, count)
	}
	return failed(fmt.Errorf("%w: %q", ErrUnsupportedEntity, kind))
}

// SearchVideos searches TikTok for videos matching the keyword.
// Requires an initialized browser (InitBrowser) and authentication.
func (s *Scraper) SearchVideos(ctx context.Context, keyword string, limit int) ([]Video, error) {
	if keyword == "" {
		return nil, fmt.Errorf("search videos: keyword is required")
	}
	videos, err := collectVideos(s.KeywordVideos(ctx, keyword, limit))
	if err != nil {
		return videos, fmt.Errorf("search videos %q: %w", keyword, err)
	}
	return videos, nil
}

// KeywordVideos streams keyword search results.
func (s *Scraper) KeywordVideos(ctx context.Context, keyword string, count int) iter.Seq2[Video, error] {
	if keyword == "" {
		return failed(fmt.Errorf("keyword videos: keyword is required"))
	}
	return paginate(ctx, count, func(ctx context.Context, cursor int64) ([]json.RawMessage, int64, bool, error) {
		return s.fetchSearch(ctx, keyword, cursor)
	})
}

func (s *Scraper) fetchSearch(ctx context.Context, keyword string, cursor int64) ([]json.RawMessage, int64, bool, error) {
	rawURL := fmt.Sprintf(
		"%s/api/search/item/full/?keyword=%s&count=20&cursor=%d&from_page=search",
		s.baseURL, url.QueryEscape(keyword), cursor,
	)

	var result searchResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return nil, 0, false, fmt.Errorf("fetch search page: %w", err)
	}
	return result.ItemList, int64(result.Cursor), result.HasMore, nil
}

// SearchByHashtag searches TikTok for videos under a specific hashtag.
// Requires an initialized browser and authentication.
func (s *Scraper) SearchByHashtag(ctx context.Context, hashtag string, limit int) ([]Video, error) {
	if hashtag == "" {
		return nil, fmt.Errorf("search by hashtag: hashtag is required")
	}
	videos, err := collectVideos(s.HashtagVideos(ctx, hashtag, limit))
	if err != nil {
		return videos, fmt.Errorf("search by hashtag %q: %w", hashtag, err)
	}
	return videos, nil
}

// HashtagVideos streams videos posted under a hashtag. The challenge id is
// resolved lazily on first iteration.
func (s *Scraper) HashtagVideos(ctx context.Context, hashtag string, count int) iter.Seq2[Video, error] {
	if hashtag == "" {
		return failed(fmt.Errorf("hashtag videos: hashtag is required"))
	}
	return func(yield func(Video, error) bool) {
		if count <= 0 {
			return
		}
		challengeID, err := s.cachedLookup("challenge:"+hashtag, func() (string, error) {
			return s.getChallengeID(ctx, hashtag)
		})
		if err != nil {
			yield(Video{}, fmt.Errorf("resolve hashtag %q: %w", hashtag, err))
			return
		}
		seq := paginate(ctx, count, func(ctx context.Context, cursor int64) ([]json.RawMessage, int64, bool, error) {
			return s.fetchHashtagVideos(ctx, challengeID, cursor)
		})
		for v, err := range seq {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (s *Scraper) getChallengeID(ctx context.Context, hashtag string) (string, error) {
	rawURL := fmt.Sprintf(
		"%s/api/challenge/detail/?challengeName=%s",
		s.baseURL, url.QueryEscape(hashtag),
	)

	var result challengeDetailResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return "", fmt.Errorf("challenge detail: %w", err)
	}

	if result.ChallengeInfo.Challenge.ID == "" {
		return "", fmt.Errorf("%w: challenge %q", ErrNotFound, hashtag)
	}
	return result.ChallengeInfo.Challenge.ID, nil
}

func (s *Scraper) fetchHashtagVideos(ctx context.Context, challengeID string, cursor int64) ([]json.RawMessage, int64, bool, error) {
	rawURL := fmt.Sprintf(
		"%s/api/challenge/item_list/?challengeID=%s&count=35&cursor=%d",
		s.baseURL, url.QueryEscape(challengeID), cursor,
	)

	var result itemListResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return nil, 0, false, fmt.Errorf("fetch hashtag page: %w", err)
	}
	return result.ItemList, int64(result.Cursor), result.HasMore, nil
}
