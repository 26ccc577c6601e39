package tiktok

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
)

// Comments streams up to count top-level comments for a video id. Malformed
// entries yield ErrMalformedItem and the stream continues.
func (s *Scraper) Comments(ctx context.Context, videoID string, count int) iter.Seq2[Comment, error] {
	return func(yield func(Comment, error) bool) {
		if videoID == "" {
			yield(Comment{}, errors.New("comments: video id is required"))
			return
		}
		if count <= 0 {
			return
		}
		yielded := 0
		var cursor int64
		for {
			if err := ctx.Err(); err != nil {
				yield(Comment{}, err)
				return
			}
			page, err := s.fetchComments(ctx, videoID, cursor)
			if err != nil {
				yield(Comment{}, fmt.Errorf("comments %s: %w", videoID, err))
				return
			}
			for _, raw := range page.Comments {
				c, err := decodeComment(raw, videoID)
				if !yield(c, err) {
					return
				}
				if err == nil {
					yielded++
					if yielded >= count {
						return
					}
				}
			}
			next := int64(page.Cursor)
			if page.HasMore == 0 || len(page.Comments) == 0 || next == cursor {
				return
			}
			cursor = next
		}
	}
}

func (s *Scraper) fetchComments(ctx context.Context, videoID string, cursor int64) (commentListResponse, error) {
	rawURL := fmt.Sprintf(
		"%s/api/comment/list/?aweme_id=%s&count=20&cursor=%d",
		s.baseURL, url.QueryEscape(videoID), cursor,
	)

	var result commentListResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return commentListResponse{}, err
	}
	return result, nil
}
