package tiktok

import "time"

// Video represents a TikTok video with its engagement metrics.
type Video struct {
	ID          string
	Description string
	AuthorID    string
	Username    string
	CreatedAt   time.Time
	Views       int
	Likes       int
	Comments    int
	Shares      int
}

// URL returns the canonical reference for the video.
func (v Video) URL() string {
	return VideoURL(v.Username, v.ID)
}

// Author represents a TikTok user profile with their stats.
type Author struct {
	ID             string
	Username       string
	FollowerCount  int
	FollowingCount int
	VideoCount     int
	Verified       bool
	Bio            string
	AvatarURL      string
	SecUID         string
}

// Comment is a single top-level comment on a video.
type Comment struct {
	ID        string
	VideoID   string
	Username  string
	Text      string
	Language  string
	Likes     int
	Replies   int
	CreatedAt time.Time
}

// EntityKind selects what a video stream is keyed by.
type EntityKind string

const (
	EntityHashtag      EntityKind = "hashtag"
	EntityUser         EntityKind = "user"
	EntityVideoRelated EntityKind = "video_related"
	EntityKeyword      EntityKind = "keyword"
)

// ParseEntityKind maps a user supplied name to an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	switch k := EntityKind(s); k {
	case EntityHashtag, EntityUser, EntityVideoRelated, EntityKeyword:
		return k, nil
	}
	return "", ErrUnsupportedEntity
}
