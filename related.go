package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strings"
)

// RelatedVideos streams videos TikTok recommends next to a video. The value
// may be a full video URL or a bare video id. The related endpoint has no
// cursor; it is polled until it stops returning new videos.
func (s *Scraper) RelatedVideos(ctx context.Context, video string, count int) iter.Seq2[Video, error] {
	if video == "" {
		return failed(fmt.Errorf("related videos: video is required"))
	}
	itemID := video
	if strings.Contains(video, "/") {
		_, id, err := ParseVideoURL(video)
		if err != nil {
			return failed(fmt.Errorf("related videos: %w", err))
		}
		itemID = id
	}

	seen := make(map[string]struct{})
	return paginate(ctx, count, func(ctx context.Context, cursor int64) ([]json.RawMessage, int64, bool, error) {
		items, err := s.fetchRelated(ctx, itemID)
		if err != nil {
			return nil, 0, false, err
		}
		fresh := items[:0]
		for _, raw := range items {
			var probe struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(raw, &probe) == nil && probe.ID != "" {
				if _, dup := seen[probe.ID]; dup {
					continue
				}
				seen[probe.ID] = struct{}{}
			}
			fresh = append(fresh, raw)
		}
		return fresh, cursor + 1, len(fresh) > 0, nil
	})
}

func (s *Scraper) fetchRelated(ctx context.Context, itemID string) ([]json.RawMessage, error) {
	rawURL := fmt.Sprintf(
		"%s/api/related/item_list/?itemID=%s&count=16",
		s.baseURL, url.QueryEscape(itemID),
	)

	var result itemListResponse
	if err := s.getJSON(ctx, rawURL, &result); err != nil {
		return nil, fmt.Errorf("fetch related page: %w", err)
	}
	return result.ItemList, nil
}
