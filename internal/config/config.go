// Package config assembles run settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"

	"github.com/RavensCloud/tiktok-harvest/internal/retry"
)

// Config holds every tunable of a harvest run.
type Config struct {
	MsToken     string
	Proxy       string
	CookiesPath string
	Headless    bool

	Hashtags         []string
	VideosPerHashtag int
	CommentsPerVideo int

	OutputDir    string
	TempDir      string
	WorkbookName string

	CollectRetries  int
	CommentRetries  int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	SubtitleTimeout time.Duration
	VideoDelay      time.Duration
	SearchDelay     time.Duration
	ProfileDelay    time.Duration

	LogLevel slog.Level
}

// Load reads envFile (when set) or ./.env (when present) into the
// environment, then builds a Config. Variables already set in the environment
// win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		// Optional; a missing .env is fine.
		_ = godotenv.Load()
	}

	headless, err := parseBool("HEADLESS", env.Str("HEADLESS", "true"))
	if err != nil {
		return Config{}, err
	}
	level, err := parseLevel(env.Str("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	c := Config{
		MsToken:     env.Str("MS_TOKEN", ""),
		Proxy:       env.Str("TIKTOK_PROXY", ""),
		CookiesPath: env.Str("TIKTOK_COOKIES", ""),
		Headless:    headless,

		Hashtags:         Hashtags(env.List("HASHTAGS", "")),
		VideosPerHashtag: env.Int("VIDEOS_PER_HASHTAG", 1000),
		CommentsPerVideo: env.Int("COMMENTS_PER_VIDEO", 2000),

		OutputDir:    env.Str("OUTPUT_DIR", "./output"),
		TempDir:      env.Str("TEMP_DIR", "./temp"),
		WorkbookName: env.Str("WORKBOOK_NAME", "video_info.xlsx"),

		CollectRetries:  env.Int("COLLECT_RETRIES", 5),
		CommentRetries:  env.Int("COMMENT_RETRIES", 3),
		BackoffMin:      env.Duration("BACKOFF_MIN", 1*time.Second),
		BackoffMax:      env.Duration("BACKOFF_MAX", 8*time.Second),
		SubtitleTimeout: env.Duration("SUBTITLE_TIMEOUT", 10*time.Second),
		VideoDelay:      env.Duration("VIDEO_DELAY", 5*time.Second),
		SearchDelay:     env.Duration("SEARCH_DELAY", 2*time.Second),
		ProfileDelay:    env.Duration("PROFILE_DELAY", 1*time.Second),

		LogLevel: level,
	}
	return c, nil
}

// Validate reports settings a run cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.VideosPerHashtag <= 0 {
		errs = append(errs, fmt.Errorf("VIDEOS_PER_HASHTAG must be positive, got %d", c.VideosPerHashtag))
	}
	if c.CommentsPerVideo < 0 {
		errs = append(errs, fmt.Errorf("COMMENTS_PER_VIDEO must not be negative, got %d", c.CommentsPerVideo))
	}
	if c.CollectRetries <= 0 {
		errs = append(errs, fmt.Errorf("COLLECT_RETRIES must be positive, got %d", c.CollectRetries))
	}
	if c.CommentRetries <= 0 {
		errs = append(errs, fmt.Errorf("COMMENT_RETRIES must be positive, got %d", c.CommentRetries))
	}
	if c.BackoffMin < 0 || c.BackoffMax < c.BackoffMin {
		errs = append(errs, fmt.Errorf("backoff range %s..%s is invalid", c.BackoffMin, c.BackoffMax))
	}
	if c.WorkbookName == "" {
		errs = append(errs, errors.New("WORKBOOK_NAME is required"))
	}
	return errors.Join(errs...)
}

// CollectPolicy is the retry policy for URL collection.
func (c Config) CollectPolicy() retry.Policy {
	return retry.Policy{Attempts: c.CollectRetries, MinWait: c.BackoffMin, MaxWait: c.BackoffMax}
}

// CommentPolicy is the retry policy for comment fetching.
func (c Config) CommentPolicy() retry.Policy {
	return retry.Policy{Attempts: c.CommentRetries, MinWait: c.BackoffMin, MaxWait: c.BackoffMax}
}

// WorkbookPath is the output workbook location.
func (c Config) WorkbookPath() string {
	return filepath.Join(c.OutputDir, c.WorkbookName)
}

// ProgressPath is the resume database location.
func (c Config) ProgressPath() string {
	return filepath.Join(c.TempDir, "progress.db")
}

// Hashtags normalizes raw hashtag values: whitespace and a leading '#' are
// removed and empty values dropped.
func Hashtags(raw []string) []string {
	var out []string
	for _, h := range raw {
		h = strings.TrimPrefix(strings.TrimSpace(h), "#")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
