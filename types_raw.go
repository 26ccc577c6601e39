package tiktok

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlexInt decodes a JSON number that TikTok sometimes sends as a string.
// An empty string decodes to zero.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			return fmt.Errorf("flexint %q: %w", data, err)
		}
		n = int64(fl)
	}
	*f = FlexInt(n)
	return nil
}

// Search API response.

type searchResponse struct {
	ItemList []json.RawMessage `json:"item_list"`
	HasMore  bool              `json:"has_more"`
	Cursor   FlexInt           `json:"cursor"`
}

// Challenge/hashtag API responses.

type challengeDetailResponse struct {
	ChallengeInfo rawChallengeInfo `json:"challengeInfo"`
}

type rawChallengeInfo struct {
	Challenge rawChallenge      `json:"challenge"`
	Stats     rawChallengeStats `json:"stats"`
}

type rawChallenge struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

type rawChallengeStats struct {
	VideoCount int `json:"videoCount"`
	ViewCount  int `json:"viewCount"`
}

// itemListResponse is shared by challenge/item_list, post/item_list and
// related/item_list.
type itemListResponse struct {
	ItemList []json.RawMessage `json:"itemList"`
	HasMore  bool              `json:"hasMore"`
	Cursor   FlexInt           `json:"cursor"`
}

// Comment API response.

type commentListResponse struct {
	Comments []json.RawMessage `json:"comments"`
	Cursor   FlexInt           `json:"cursor"`
	HasMore  FlexInt           `json:"has_more"`
	Total    FlexInt           `json:"total"`
}

type rawComment struct {
	CID             string         `json:"cid"`
	AwemeID         string         `json:"aweme_id"`
	Text            string         `json:"text"`
	CreateTime      FlexInt        `json:"create_time"`
	DiggCount       FlexInt        `json:"digg_count"`
	ReplyTotal      FlexInt        `json:"reply_comment_total"`
	CommentLanguage string         `json:"comment_language"`
	User            rawCommentUser `json:"user"`
}

type rawCommentUser struct {
	UniqueID string `json:"unique_id"`
	Nickname string `json:"nickname"`
}

// Shared raw video/author/stats structs (match TikTok JSON exactly).

type rawVideo struct {
	ID         string    `json:"id"`
	Desc       string    `json:"desc"`
	CreateTime FlexInt   `json:"createTime"`
	Author     rawAuthor `json:"author"`
	Stats      rawStats  `json:"stats"`
}

type rawAuthor struct {
	UniqueID    string `json:"uniqueId"`
	ID          string `json:"id"`
	Nickname    string `json:"nickname"`
	AvatarThumb string `json:"avatarThumb"`
	Verified    bool   `json:"verified"`
}

type rawStats struct {
	PlayCount    FlexInt `json:"playCount"`
	DiggCount    FlexInt `json:"diggCount"`
	ShareCount   FlexInt `json:"shareCount"`
	CommentCount FlexInt `json:"commentCount"`
}

// SSR (Server-Side Rendered) data structs for __UNIVERSAL_DATA_FOR_REHYDRATION__.

type universalData struct {
	DefaultScope defaultScope `json:"__DEFAULT_SCOPE__"`
}

type defaultScope struct {
	UserDetail  userDetailWrapper  `json:"webapp.user-detail"`
	VideoDetail videoDetailWrapper `json:"webapp.video-detail"`
}

type userDetailWrapper struct {
	UserInfo rawUserInfo `json:"userInfo"`
}

type videoDetailWrapper struct {
	StatusCode int         `json:"statusCode"`
	ItemInfo   rawItemInfo `json:"itemInfo"`
}

type rawItemInfo struct {
	ItemStruct json.RawMessage `json:"itemStruct"`
}

// sigiState is the older SSR layout keyed by item id.
type sigiState struct {
	ItemModule map[string]json.RawMessage `json:"ItemModule"`
}

type rawUserInfo struct {
	User  rawUserDetail `json:"user"`
	Stats rawUserStats  `json:"stats"`
}

type rawUserDetail struct {
	ID           string `json:"id"`
	UniqueID     string `json:"uniqueId"`
	Nickname     string `json:"nickname"`
	AvatarLarger string `json:"avatarLarger"`
	Signature    string `json:"signature"`
	Verified     bool   `json:"verified"`
	SecUID       string `json:"secUid"`
}

type rawUserStats struct {
	FollowerCount  int `json:"followerCount"`
	FollowingCount int `json:"followingCount"`
	Heart          int `json:"heart"`
	HeartCount     int `json:"heartCount"`
	VideoCount     int `json:"videoCount"`
	DiggCount      int `json:"diggCount"`
}

// parseVideo converts a raw TikTok API video to the public Video type.
func parseVideo(raw rawVideo) Video {
	return Video{
		ID:          raw.ID,
		Description: raw.Desc,
		AuthorID:    raw.Author.ID,
		Username:    raw.Author.UniqueID,
		CreatedAt:   time.Unix(int64(raw.CreateTime), 0),
		Views:       int(raw.Stats.PlayCount),
		Likes:       int(raw.Stats.DiggCount),
		Comments:    int(raw.Stats.CommentCount),
		Shares:      int(raw.Stats.ShareCount),
	}
}

// decodeVideo decodes one list entry. Entries that fail to decode or miss the
// id or author handle are reported as ErrMalformedItem.
func decodeVideo(data json.RawMessage) (Video, error) {
	var raw rawVideo
	if err := json.Unmarshal(data, &raw); err != nil {
		return Video{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if raw.ID == "" || raw.Author.UniqueID == "" {
		return Video{}, fmt.Errorf("%w: missing id or author handle", ErrMalformedItem)
	}
	return parseVideo(raw), nil
}

// decodeComment decodes one comment entry.
func decodeComment(data json.RawMessage, videoID string) (Comment, error) {
	var raw rawComment
	if err := json.Unmarshal(data, &raw); err != nil {
		return Comment{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if raw.CID == "" {
		return Comment{}, fmt.Errorf("%w: comment without cid", ErrMalformedItem)
	}
	if raw.AwemeID != "" {
		videoID = raw.AwemeID
	}
	return Comment{
		ID:        raw.CID,
		VideoID:   videoID,
		Username:  raw.User.UniqueID,
		Text:      raw.Text,
		Language:  raw.CommentLanguage,
		Likes:     int(raw.DiggCount),
		Replies:   int(raw.ReplyTotal),
		CreatedAt: time.Unix(int64(raw.CreateTime), 0).UTC(),
	}, nil
}

// parseAuthor converts raw SSR user info to the public Author type.
func parseAuthor(raw rawUserInfo) Author {
	return Author{
		ID:             raw.User.ID,
		Username:       raw.User.UniqueID,
		FollowerCount:  raw.Stats.FollowerCount,
		FollowingCount: raw.Stats.FollowingCount,
		VideoCount:     raw.Stats.VideoCount,
		Verified:       raw.User.Verified,
		Bio:            raw.User.Signature,
		AvatarURL:      raw.User.AvatarLarger,
		SecUID:         raw.User.SecUID,
	}
}
