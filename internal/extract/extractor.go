// Package extract turns video references into workbook rows: video details,
// a transcript and comments, one video at a time.
package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/time/rate"

	tiktok "github.com/RavensCloud/tiktok-harvest"
	"github.com/RavensCloud/tiktok-harvest/internal/ledger"
	"github.com/RavensCloud/tiktok-harvest/internal/progress"
	"github.com/RavensCloud/tiktok-harvest/internal/retry"
	"github.com/RavensCloud/tiktok-harvest/internal/sink"
)

// ErrNoDocument is recorded for a video page that carried no item data.
var ErrNoDocument = errors.New("extract: no item document")

// ErrCommentsNotWritten is returned when the video row was written but its
// comment rows could not be.
var ErrCommentsNotWritten = errors.New("extract: comment rows not written")

// DocumentFetcher loads the item document behind a video URL. A nil document
// with a nil error means the page had no item data.
type DocumentFetcher interface {
	FetchItemDocument(ctx context.Context, videoURL string) (*tiktok.ItemDocument, error)
}

// SubtitleFetcher downloads a subtitle payload with a per-call timeout.
type SubtitleFetcher interface {
	FetchSubtitle(ctx context.Context, subtitleURL string, timeout time.Duration) (string, error)
}

// CommentSession streams comments and must be closed.
type CommentSession interface {
	Comments(ctx context.Context, videoID string, count int) iter.Seq2[tiktok.Comment, error]
	Close() error
}

// CommentOpener opens comment sessions.
type CommentOpener interface {
	Open(ctx context.Context) (CommentSession, error)
}

// CommentOpenerFunc adapts a function to CommentOpener.
type CommentOpenerFunc func(ctx context.Context) (CommentSession, error)

func (f CommentOpenerFunc) Open(ctx context.Context) (CommentSession, error) { return f(ctx) }

// Sink receives rows for a named sheet.
type Sink interface {
	Append(sheet string, header []string, rows [][]any) error
}

// Progress remembers which videos are finished.
type Progress interface {
	Done(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url, hashtag string, status progress.Status, cause error) error
}

// Sources groups the collaborators an Extractor reads from.
type Sources struct {
	Documents DocumentFetcher
	Subtitles SubtitleFetcher
	Comments  CommentOpener
}

// Options tune an Extractor.
type Options struct {
	// Comments is the most comments kept per video. Zero disables comments.
	Comments        int
	CommentPolicy   retry.Policy
	SubtitleTimeout time.Duration
	// Delay is the minimum spacing between videos; Jitter adds up to that
	// much random extra wait.
	Delay        time.Duration
	Jitter       time.Duration
	VideoSheet   string
	CommentSheet string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Comments:        2000,
		CommentPolicy:   retry.DefaultPolicy().WithAttempts(3),
		SubtitleTimeout: 10 * time.Second,
		Delay:           5 * time.Second,
		Jitter:          2 * time.Second,
		VideoSheet:      sink.VideoSheet,
		CommentSheet:    sink.CommentSheet,
	}
}

// Stats summarizes a Run.
type Stats struct {
	Processed int
	Skipped   int
	Failed    int
	Partial   int
	Comments  int
	Resumed   int
}

// Extractor processes video references sequentially.
type Extractor struct {
	src      Sources
	sink     Sink
	opts     Options
	logger   *slog.Logger
	progress Progress
	limiter  *rate.Limiter
	now      func() time.Time

	// session is the open comment session, reused until an attempt on it
	// fails or the hashtag changes.
	session CommentSession
}

// New returns an Extractor. A nil logger uses slog.Default().
func New(src Sources, out Sink, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.VideoSheet == "" {
		opts.VideoSheet = sink.VideoSheet
	}
	if opts.CommentSheet == "" {
		opts.CommentSheet = sink.CommentSheet
	}
	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	return &Extractor{
		src:     src,
		sink:    out,
		opts:    opts,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// WithProgress makes Run skip videos already marked done and record the
// outcome of every video it processes.
func (e *Extractor) WithProgress(p Progress) *Extractor {
	e.progress = p
	return e
}

// Run processes items in order. A failing video is logged and counted; it
// never stops the run. Run returns early only when ctx is done.
func (e *Extractor) Run(ctx context.Context, items []ledger.Item) Stats {
	var stats Stats
	start := time.Now()
	defer e.Close()

	prevKey := ""
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		if item.Key != prevKey {
			e.Close()
			prevKey = item.Key
		}
		if e.alreadyDone(ctx, item) {
			stats.Resumed++
			continue
		}
		if err := e.pace(ctx); err != nil {
			break
		}

		comments, err := e.Process(ctx, item)
		stats.Comments += comments
		status := progress.StatusDone
		switch {
		case errors.Is(err, ErrNoDocument):
			stats.Skipped++
			status = progress.StatusSkipped
			e.logger.Warn("no item document, skipping video",
				slog.String("hashtag", item.Key), slog.String("url", item.URL))
		case errors.Is(err, ErrCommentsNotWritten):
			stats.Partial++
			status = progress.StatusPartial
			e.logger.Warn("video row written without comments",
				slog.String("hashtag", item.Key), slog.String("url", item.URL), slog.Any("error", err))
		case err != nil:
			stats.Failed++
			status = progress.StatusFailed
			e.logger.Error("extract video failed",
				slog.String("hashtag", item.Key), slog.String("url", item.URL), slog.Any("error", err))
		default:
			stats.Processed++
			e.logger.Info("extracted video",
				slog.String("hashtag", item.Key), slog.String("url", item.URL),
				slog.Int("comments", comments), slog.Int("n", i+1), slog.Int("of", len(items)))
		}
		e.mark(ctx, item, status, err)
	}

	e.logger.Info("extraction finished",
		slog.Int("processed", stats.Processed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("partial", stats.Partial),
		slog.Int("resumed", stats.Resumed),
		slog.Int("comments", stats.Comments),
		slog.Duration("took", time.Since(start)),
	)
	return stats
}

// Process extracts one video and writes its rows. It returns the number of
// comment rows written. A page without item data returns ErrNoDocument and
// writes nothing. Once the video row is written the video is marked partial,
// so a later run never writes it again; a failed comment write then returns
// ErrCommentsNotWritten.
func (e *Extractor) Process(ctx context.Context, item ledger.Item) (int, error) {
	_, id, err := tiktok.ParseVideoURL(item.URL)
	if err != nil {
		return 0, err
	}

	doc, err := e.src.Documents.FetchItemDocument(ctx, item.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch item document: %w", err)
	}
	if doc == nil {
		return 0, ErrNoDocument
	}

	row := videoRow(doc, item.Key, id)
	row.TranscriptLanguage, row.Transcript = e.transcript(ctx, row.VideoID, doc)
	row.ExtractedAt = e.now().UTC()

	if err := e.sink.Append(e.opts.VideoSheet, videoHeader, [][]any{row.Values()}); err != nil {
		return 0, fmt.Errorf("write video row: %w", err)
	}
	e.mark(ctx, item, progress.StatusPartial, nil)

	comments, err := e.Comments(ctx, row.VideoID)
	if err != nil {
		// Whatever arrived before the retries ran out is still written.
		e.logger.Warn("comments incomplete",
			slog.String("video_id", row.VideoID), slog.Int("kept", len(comments)), slog.Any("error", err))
	}
	if len(comments) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(comments))
	for i, c := range comments {
		rows[i] = c.Values()
	}
	if err := e.sink.Append(e.opts.CommentSheet, commentHeader, rows); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCommentsNotWritten, err)
	}
	return len(rows), nil
}

// transcript fetches the preferred subtitle track. Any failure leaves both
// values empty.
func (e *Extractor) transcript(ctx context.Context, videoID string, doc *tiktok.ItemDocument) (language, text string) {
	if doc.Video == nil || e.src.Subtitles == nil {
		return "", ""
	}
	track, ok := SelectTrack(doc.Video.Subtitles)
	if !ok {
		return "", ""
	}
	payload, err := e.src.Subtitles.FetchSubtitle(ctx, track.URL, e.opts.SubtitleTimeout)
	if err != nil {
		e.logger.Warn("subtitle unavailable",
			slog.String("video_id", videoID), slog.String("language", track.LanguageCodeName), slog.Any("error", err))
		return "", ""
	}
	return track.LanguageCodeName, CleanTranscript(payload)
}

// Comments returns up to the configured number of comments for videoID.
// Failed attempts are retried with the comment policy; comments gathered by
// earlier attempts are kept and deduplicated by id, and the cap applies to
// the merged result. The comment session stays open across videos; a failed
// attempt closes it so the retry opens a fresh one. On exhaustion the
// partial result is returned with the last error.
func (e *Extractor) Comments(ctx context.Context, videoID string) ([]CommentRow, error) {
	limit := e.opts.Comments
	if limit <= 0 || e.src.Comments == nil {
		return nil, nil
	}

	var out []CommentRow
	seen := make(map[string]struct{})
	err := retry.Do(ctx, e.opts.CommentPolicy, func(ctx context.Context, attempt int) error {
		session, err := e.commentSession(ctx)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}

		for c, err := range session.Comments(ctx, videoID, limit+len(out)) {
			if errors.Is(err, tiktok.ErrMalformedItem) {
				continue
			}
			if err != nil {
				e.Close()
				return err
			}
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, commentRow(c, commentLanguage(c)))
			if len(out) >= limit {
				return nil
			}
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		e.logger.Warn("comment attempt failed",
			slog.String("video_id", videoID),
			slog.Int("attempt", attempt),
			slog.Int("kept", len(out)),
			slog.Duration("retry_in", wait),
			slog.Any("error", err),
		)
	})
	return out, err
}

// commentSession returns the open comment session or opens one.
func (e *Extractor) commentSession(ctx context.Context) (CommentSession, error) {
	if e.session != nil {
		return e.session, nil
	}
	s, err := e.src.Comments.Open(ctx)
	if err != nil {
		return nil, err
	}
	e.session = s
	return s, nil
}

// Close releases the open comment session, if any. Run calls it when it
// returns; callers using Process or Comments directly close it themselves.
func (e *Extractor) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	if err != nil {
		e.logger.Warn("close comment session", slog.Any("error", err))
	}
	return err
}

// commentLanguage prefers the platform's own tag and falls back to detection.
func commentLanguage(c tiktok.Comment) string {
	if c.Language != "" {
		return c.Language
	}
	if c.Text == "" {
		return ""
	}
	return whatlanggo.Detect(c.Text).Lang.Iso6391()
}

func (e *Extractor) pace(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if e.opts.Jitter <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(rand.Int64N(int64(e.opts.Jitter) + 1)))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Extractor) alreadyDone(ctx context.Context, item ledger.Item) bool {
	if e.progress == nil {
		return false
	}
	done, err := e.progress.Done(ctx, item.URL)
	if err != nil {
		e.logger.Warn("progress lookup failed", slog.String("url", item.URL), slog.Any("error", err))
		return false
	}
	return done
}

func (e *Extractor) mark(ctx context.Context, item ledger.Item, status progress.Status, cause error) {
	if e.progress == nil {
		return
	}
	if err := e.progress.Mark(ctx, item.URL, item.Key, status, cause); err != nil {
		e.logger.Warn("progress update failed", slog.String("url", item.URL), slog.Any("error", err))
	}
}
