package extract

import (
	"time"

	tiktok "github.com/RavensCloud/tiktok-harvest"
)

// TimeLayout formats every timestamp written to the workbook.
const TimeLayout = "2006-01-02 15:04:05"

// VideoRow is one flattened video. Nil members are fields the item document
// did not carry; they are written as empty cells.
type VideoRow struct {
	VideoID     string
	Hashtag     string
	CreatedAt   *time.Time
	Location    *string
	Views       *int64
	Likes       *int64
	Comments    *int64
	Shares      *int64
	Saves       *int64
	Description *string
	IsAd        *bool
	Duration    *int64
	MusicTitle  *string

	AuthorID        *string
	AuthorUsername  *string
	AuthorNickname  *string
	AuthorVerified  *bool
	AuthorFollowers *int64
	AuthorFollowing *int64
	AuthorHearts    *int64
	AuthorVideos    *int64

	TranscriptLanguage string
	Transcript         string
	ExtractedAt        time.Time
}

var videoHeader = []string{
	"video_id", "hashtag", "video_timestamp", "location",
	"views", "likes", "comments", "shares", "saves",
	"description", "is_ad", "duration", "music_title",
	"author_id", "author_username", "author_nickname", "author_verified",
	"author_followers", "author_following", "author_likes", "author_videos",
	"video_language", "video_transcription", "extracted_at",
}

// VideoHeader is the header row of the video sheet.
func VideoHeader() []string { return append([]string(nil), videoHeader...) }

// Values returns the row cells in VideoHeader order.
func (r VideoRow) Values() []any {
	return []any{
		r.VideoID, r.Hashtag, timeCell(r.CreatedAt), strCell(r.Location),
		intCell(r.Views), intCell(r.Likes), intCell(r.Comments), intCell(r.Shares), intCell(r.Saves),
		strCell(r.Description), boolCell(r.IsAd), intCell(r.Duration), strCell(r.MusicTitle),
		strCell(r.AuthorID), strCell(r.AuthorUsername), strCell(r.AuthorNickname), boolCell(r.AuthorVerified),
		intCell(r.AuthorFollowers), intCell(r.AuthorFollowing), intCell(r.AuthorHearts), intCell(r.AuthorVideos),
		r.TranscriptLanguage, r.Transcript, r.ExtractedAt.UTC().Format(TimeLayout),
	}
}

// CommentRow is one comment on a video.
type CommentRow struct {
	VideoID   string
	Language  string
	Text      string
	Likes     int64
	CreatedAt *time.Time
}

var commentHeader = []string{"video_id", "comment_language", "comment", "likes", "comment_timestamp"}

// CommentHeader is the header row of the comment sheet.
func CommentHeader() []string { return append([]string(nil), commentHeader...) }

// Values returns the row cells in CommentHeader order.
func (r CommentRow) Values() []any {
	return []any{r.VideoID, r.Language, r.Text, r.Likes, timeCell(r.CreatedAt)}
}

// videoRow flattens doc. The URL's video id is used when the document has
// none.
func videoRow(doc *tiktok.ItemDocument, hashtag, fallbackID string) VideoRow {
	row := VideoRow{
		VideoID:     fallbackID,
		Hashtag:     hashtag,
		CreatedAt:   unixTime(doc.CreateTime),
		Location:    doc.LocationCreated,
		Description: doc.Desc,
		IsAd:        doc.IsAd,
	}
	if doc.ID != nil && *doc.ID != "" {
		row.VideoID = *doc.ID
	}
	if st := doc.Stats; st != nil {
		row.Views = flex(st.PlayCount)
		row.Likes = flex(st.DiggCount)
		row.Comments = flex(st.CommentCount)
		row.Shares = flex(st.ShareCount)
		row.Saves = flex(st.CollectCount)
	}
	if v := doc.Video; v != nil {
		row.Duration = flex(v.Duration)
	}
	if m := doc.Music; m != nil {
		row.MusicTitle = m.Title
	}
	if a := doc.Author; a != nil {
		row.AuthorID = a.ID
		row.AuthorUsername = a.UniqueID
		row.AuthorNickname = a.Nickname
		row.AuthorVerified = a.Verified
	}
	if as := doc.AuthorStats; as != nil {
		row.AuthorFollowers = flex(as.FollowerCount)
		row.AuthorFollowing = flex(as.FollowingCount)
		row.AuthorHearts = flex(as.HeartCount)
		row.AuthorVideos = flex(as.VideoCount)
	}
	return row
}

func commentRow(c tiktok.Comment, language string) CommentRow {
	row := CommentRow{
		VideoID:  c.VideoID,
		Language: language,
		Text:     c.Text,
		Likes:    int64(c.Likes),
	}
	if c.CreatedAt.Unix() > 0 {
		t := c.CreatedAt.UTC()
		row.CreatedAt = &t
	}
	return row
}

func flex(p *tiktok.FlexInt) *int64 {
	if p == nil {
		return nil
	}
	n := int64(*p)
	return &n
}

func unixTime(p *tiktok.FlexInt) *time.Time {
	if p == nil || *p <= 0 {
		return nil
	}
	t := time.Unix(int64(*p), 0).UTC()
	return &t
}

func strCell(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func intCell(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolCell(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeCell(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC().Format(TimeLayout)
}
