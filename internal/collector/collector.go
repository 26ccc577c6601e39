// Package collector gathers video references for one query key from a
// session-scoped video source, retrying transient failures.
package collector

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	tiktok "github.com/RavensCloud/tiktok-harvest"
	"github.com/RavensCloud/tiktok-harvest/internal/retry"
)

// Session is one open connection to the video source.
type Session interface {
	Videos(ctx context.Context, kind tiktok.EntityKind, value string, count int) iter.Seq2[tiktok.Video, error]
	Close() error
}

// Opener opens sessions. At most one session is open at a time.
type Opener interface {
	Open(ctx context.Context) (Session, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Session, error)

func (f OpenerFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// Collector produces up to a target number of distinct video references.
type Collector struct {
	opener Opener
	policy retry.Policy
	logger *slog.Logger
}

// New returns a Collector. A nil logger uses slog.Default().
func New(opener Opener, policy retry.Policy, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{opener: opener, policy: policy, logger: logger}
}

// Collect returns at most target references for kind/key. Each attempt opens
// a fresh session and closes it before returning. Failed attempts are retried
// after a random wait; references gathered by earlier attempts are kept and
// later attempts only add references not seen yet. When the attempts run out
// the references gathered so far are returned; Collect never fails.
func (c *Collector) Collect(ctx context.Context, kind tiktok.EntityKind, key string, target int) []string {
	if target <= 0 {
		return nil
	}

	refs := make([]string, 0, min(target, 1024))
	seen := make(map[string]struct{}, min(target, 1024))
	start := time.Now()

	err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		return c.attempt(ctx, kind, key, target, &refs, seen)
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("collect attempt failed",
			slog.String("key", key),
			slog.String("kind", string(kind)),
			slog.Int("attempt", attempt),
			slog.Int("collected", len(refs)),
			slog.Duration("retry_in", wait),
			slog.Any("error", err),
		)
	})
	if err != nil {
		c.logger.Error("collect gave up, keeping partial result",
			slog.String("key", key),
			slog.Int("collected", len(refs)),
			slog.Int("target", target),
			slog.Any("error", err),
		)
	}

	c.logger.Info("collected video urls",
		slog.String("key", key),
		slog.String("kind", string(kind)),
		slog.Int("count", len(refs)),
		slog.Int("target", target),
		slog.Duration("took", time.Since(start)),
	)
	return refs
}

// attempt runs one session. The session is closed on every return path.
func (c *Collector) attempt(ctx context.Context, kind tiktok.EntityKind, key string, target int, refs *[]string, seen map[string]struct{}) (err error) {
	session, err := c.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("close session", slog.String("key", key), slog.Any("error", cerr))
		}
	}()

	// A retried stream starts over, so ask for enough to get past the
	// references an earlier attempt already has.
	count := target + len(*refs)
	for v, verr := range session.Videos(ctx, kind, key, count) {
		if errors.Is(verr, tiktok.ErrMalformedItem) {
			c.logger.Debug("skipping malformed item", slog.String("key", key), slog.Any("error", verr))
			continue
		}
		if verr != nil {
			return verr
		}
		ref, ok := reference(kind, key, v)
		if !ok {
			c.logger.Debug("skipping item without reference fields", slog.String("key", key), slog.String("id", v.ID))
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		*refs = append(*refs, ref)
		if len(*refs) >= target {
			return nil
		}
	}
	return nil
}

// reference builds the canonical URL for v. Videos collected for a user key
// are attributed to that handle.
func reference(kind tiktok.EntityKind, key string, v tiktok.Video) (string, bool) {
	handle := v.Username
	if kind == tiktok.EntityUser {
		handle = key
	}
	if handle == "" || v.ID == "" {
		return "", false
	}
	return tiktok.VideoURL(handle, v.ID), true
}
