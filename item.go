package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ItemDocument is the structured record TikTok renders into a video page.
// Every member is optional: a nil pointer means the field was absent or had
// an unexpected type. Decoding never fails on a single bad member.
type ItemDocument struct {
	ID              *string      `json:"id"`
	Desc            *string      `json:"desc"`
	CreateTime      *FlexInt     `json:"createTime"`
	LocationCreated *string      `json:"locationCreated"`
	IsAd            *bool        `json:"isAd"`
	Stats           *ItemStats   `json:"stats"`
	Author          *ItemAuthor  `json:"author"`
	AuthorStats     *AuthorStats `json:"authorStats"`
	Video           *ItemVideo   `json:"video"`
	Music           *ItemMusic   `json:"music"`
}

type ItemStats struct {
	PlayCount    *FlexInt `json:"playCount"`
	DiggCount    *FlexInt `json:"diggCount"`
	CommentCount *FlexInt `json:"commentCount"`
	ShareCount   *FlexInt `json:"shareCount"`
	CollectCount *FlexInt `json:"collectCount"`
}

type ItemAuthor struct {
	ID        *string `json:"id"`
	UniqueID  *string `json:"uniqueId"`
	Nickname  *string `json:"nickname"`
	Signature *string `json:"signature"`
	Verified  *bool   `json:"verified"`
}

type AuthorStats struct {
	FollowerCount  *FlexInt `json:"followerCount"`
	FollowingCount *FlexInt `json:"followingCount"`
	HeartCount     *FlexInt `json:"heartCount"`
	VideoCount     *FlexInt `json:"videoCount"`
}

type ItemVideo struct {
	Duration  *FlexInt        `json:"duration"`
	Subtitles []SubtitleTrack `json:"subtitleInfos"`
}

type ItemMusic struct {
	Title      *string `json:"title"`
	AuthorName *string `json:"authorName"`
}

// SubtitleTrack is one entry of video.subtitleInfos.
type SubtitleTrack struct {
	LanguageID       string `json:"LanguageID"`
	LanguageCodeName string `json:"LanguageCodeName"`
	URL              string `json:"Url"`
	Format           string `json:"Format"`
	Source           string `json:"Source"`
}

var errNotObject = errors.New("not a json object")

// jsonObject splits a JSON object into its members.
func jsonObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errNotObject
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// field decodes obj[key]. A missing, null or mistyped member yields nil.
func field[T any](obj map[string]json.RawMessage, key string) *T {
	raw, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil
	}
	return v
}

// looseString decodes a string member, accepting a number in its place.
func looseString(obj map[string]json.RawMessage, key string) string {
	if s := field[string](obj, key); s != nil {
		return *s
	}
	if n := field[json.Number](obj, key); n != nil {
		return n.String()
	}
	return ""
}

func (d *ItemDocument) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*d = ItemDocument{
		ID:              field[string](obj, "id"),
		Desc:            field[string](obj, "desc"),
		CreateTime:      field[FlexInt](obj, "createTime"),
		LocationCreated: field[string](obj, "locationCreated"),
		IsAd:            field[bool](obj, "isAd"),
		Stats:           field[ItemStats](obj, "stats"),
		Author:          field[ItemAuthor](obj, "author"),
		AuthorStats:     field[AuthorStats](obj, "authorStats"),
		Video:           field[ItemVideo](obj, "video"),
		Music:           field[ItemMusic](obj, "music"),
	}

	// SIGI_STATE items carry the author handle as a string and the rest of
	// the author next to it.
	if d.Author != nil {
		if d.Author.ID == nil {
			d.Author.ID = field[string](obj, "authorId")
		}
		if d.Author.Nickname == nil {
			d.Author.Nickname = field[string](obj, "nickname")
		}
	}
	return nil
}

func (s *ItemStats) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*s = ItemStats{
		PlayCount:    field[FlexInt](obj, "playCount"),
		DiggCount:    field[FlexInt](obj, "diggCount"),
		CommentCount: field[FlexInt](obj, "commentCount"),
		ShareCount:   field[FlexInt](obj, "shareCount"),
		CollectCount: field[FlexInt](obj, "collectCount"),
	}
	return nil
}

// UnmarshalJSON accepts the author object, or a bare handle string.
func (a *ItemAuthor) UnmarshalJSON(data []byte) error {
	var handle string
	if err := json.Unmarshal(data, &handle); err == nil {
		*a = ItemAuthor{}
		if handle != "" {
			a.UniqueID = &handle
		}
		return nil
	}
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*a = ItemAuthor{
		ID:        field[string](obj, "id"),
		UniqueID:  field[string](obj, "uniqueId"),
		Nickname:  field[string](obj, "nickname"),
		Signature: field[string](obj, "signature"),
		Verified:  field[bool](obj, "verified"),
	}
	return nil
}

func (s *AuthorStats) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*s = AuthorStats{
		FollowerCount:  field[FlexInt](obj, "followerCount"),
		FollowingCount: field[FlexInt](obj, "followingCount"),
		HeartCount:     field[FlexInt](obj, "heartCount"),
		VideoCount:     field[FlexInt](obj, "videoCount"),
	}
	return nil
}

// UnmarshalJSON keeps the subtitle tracks that decode and drops the rest.
func (v *ItemVideo) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*v = ItemVideo{Duration: field[FlexInt](obj, "duration")}
	if raws := field[[]json.RawMessage](obj, "subtitleInfos"); raws != nil {
		for _, raw := range *raws {
			var t SubtitleTrack
			if err := json.Unmarshal(raw, &t); err == nil {
				v.Subtitles = append(v.Subtitles, t)
			}
		}
	}
	return nil
}

func (m *ItemMusic) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*m = ItemMusic{
		Title:      field[string](obj, "title"),
		AuthorName: field[string](obj, "authorName"),
	}
	return nil
}

func (t *SubtitleTrack) UnmarshalJSON(data []byte) error {
	obj, err := jsonObject(data)
	if err != nil {
		return err
	}
	*t = SubtitleTrack{
		LanguageID:       looseString(obj, "LanguageID"),
		LanguageCodeName: looseString(obj, "LanguageCodeName"),
		URL:              looseString(obj, "Url"),
		Format:           looseString(obj, "Format"),
		Source:           looseString(obj, "Source"),
	}
	return nil
}

// decodeItem decodes an item document. Anything but a JSON object yields nil.
func decodeItem(raw json.RawMessage) *ItemDocument {
	var doc ItemDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return &doc
}

// FetchItemDocument loads a video page and returns its item document. A page
// that loads but has no item data returns (nil, nil).
func (s *Scraper) FetchItemDocument(ctx context.Context, videoURL string) (*ItemDocument, error) {
	_, id, err := ParseVideoURL(videoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch item document: %w", err)
	}

	totalStart := time.Now()
	s.waitForProfile()

	resp, err := s.doRequest(ctx, "GET", s.pageURL(videoURL), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch item %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read item page %s: %w", id, err)
	}

	doc, err := extractItemFromSSR(body, id)
	if err != nil {
		return nil, fmt.Errorf("parse item page %s: %w", id, err)
	}

	perfLog("FetchItemDocument: id=%s found=%v total=%v body=%d bytes",
		id, doc != nil, time.Since(totalStart), len(body))
	return doc, nil
}

// pageURL rewrites a canonical tiktok.com video URL onto the scraper's base
// URL so tests can point it at a local server.
func (s *Scraper) pageURL(videoURL string) string {
	handle, id, err := ParseVideoURL(videoURL)
	if err != nil {
		return videoURL
	}
	return s.baseURL + "/@" + handle + "/video/" + id
}
