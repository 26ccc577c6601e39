package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tiktok "github.com/RavensCloud/tiktok-harvest"
	"github.com/RavensCloud/tiktok-harvest/internal/collector"
	"github.com/RavensCloud/tiktok-harvest/internal/config"
	"github.com/RavensCloud/tiktok-harvest/internal/extract"
	"github.com/RavensCloud/tiktok-harvest/internal/ledger"
	"github.com/RavensCloud/tiktok-harvest/internal/progress"
	"github.com/RavensCloud/tiktok-harvest/internal/sink"
)

type options struct {
	envFile     string
	hashtags    string
	kind        string
	videos      int
	comments    int
	checkpoint  string
	collectOnly bool
	fresh       bool

	user        string
	login       bool
	pass        string
	saveCookies string
}

func main() {
	var o options
	flag.StringVar(&o.envFile, "env", "", "Path to a .env file (default: ./.env if present)")
	flag.StringVar(&o.hashtags, "hashtags", "", "Comma separated hashtags (overrides HASHTAGS)")
	flag.StringVar(&o.kind, "kind", string(tiktok.EntityHashtag), "What the keys are: hashtag, user, video_related or keyword")
	flag.IntVar(&o.videos, "videos", 0, "Videos to collect per hashtag (overrides VIDEOS_PER_HASHTAG)")
	flag.IntVar(&o.comments, "comments", -1, "Comments to keep per video (overrides COMMENTS_PER_VIDEO)")
	flag.StringVar(&o.checkpoint, "checkpoint", "", "Skip collection and extract from this checkpoint; \"latest\" picks the newest in TEMP_DIR")
	flag.BoolVar(&o.collectOnly, "collect-only", false, "Stop after writing the URL checkpoint")
	flag.BoolVar(&o.fresh, "fresh", false, "Clear TEMP_DIR (checkpoints and resume state) before running")
	flag.StringVar(&o.user, "user", "", "TikTok username to look up (or to log in with, with --login)")
	flag.BoolVar(&o.login, "login", false, "Login with --user and --pass, then save cookies")
	flag.StringVar(&o.pass, "pass", "", "TikTok password (used with --login)")
	flag.StringVar(&o.saveCookies, "save-cookies", "cookies.json", "Path to save cookies after login")
	flag.Parse()

	cfg, err := config.Load(o.envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	applyFlags(&cfg, o)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, o, logger); err != nil {
		logger.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, o options) {
	if o.hashtags != "" {
		cfg.Hashtags = config.Hashtags(strings.Split(o.hashtags, ","))
	}
	if o.videos > 0 {
		cfg.VideosPerHashtag = o.videos
	}
	if o.comments >= 0 {
		cfg.CommentsPerVideo = o.comments
	}
}

func run(ctx context.Context, cfg config.Config, o options, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	factory, err := tiktok.NewSessionFactory(tiktok.SessionConfig{
		MsToken:      cfg.MsToken,
		Proxy:        cfg.Proxy,
		CookiesPath:  cfg.CookiesPath,
		Headless:     cfg.Headless,
		SearchDelay:  cfg.SearchDelay,
		ProfileDelay: cfg.ProfileDelay,
	}, logger)
	if err != nil {
		return err
	}

	switch {
	case o.login:
		return login(factory, o)
	case o.user != "":
		return lookupUser(ctx, factory, o.user)
	}

	kind, err := tiktok.ParseEntityKind(o.kind)
	if err != nil {
		return fmt.Errorf("-kind %q: %w", o.kind, err)
	}
	if err := prepareDirs(cfg, o.fresh); err != nil {
		return err
	}

	var l *ledger.Ledger
	if o.checkpoint != "" {
		l, err = loadCheckpoint(cfg, o.checkpoint, logger)
	} else {
		l, err = collect(ctx, cfg, kind, factory, logger)
	}
	if err != nil {
		return err
	}
	if o.collectOnly {
		return nil
	}
	return extractAll(ctx, cfg, l, factory, logger)
}

// login authenticates in the browser and saves the session cookies.
func login(factory *tiktok.SessionFactory, o options) error {
	if o.user == "" || o.pass == "" {
		return errors.New("--login requires --user and --pass")
	}
	s, err := factory.NewScraper()
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Println("Logging in...")
	if err := s.Login(o.user, o.pass); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := s.SaveCookies(o.saveCookies); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	fmt.Printf("Logged in! Cookies saved to %s\n", o.saveCookies)
	return nil
}

// lookupUser prints a profile. Pure HTTP, no browser needed.
func lookupUser(ctx context.Context, factory *tiktok.SessionFactory, username string) error {
	s, err := factory.NewScraper()
	if err != nil {
		return err
	}
	defer s.Close()

	author, err := s.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	printAuthor(author)
	return nil
}

func prepareDirs(cfg config.Config, fresh bool) error {
	if fresh {
		if err := os.RemoveAll(cfg.TempDir); err != nil {
			return fmt.Errorf("clear temp dir: %w", err)
		}
	}
	for _, dir := range []string{cfg.TempDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func loadCheckpoint(cfg config.Config, path string, logger *slog.Logger) (*ledger.Ledger, error) {
	if path == "latest" {
		latest, err := ledger.Latest(cfg.TempDir)
		if err != nil {
			return nil, err
		}
		path = latest
	}
	l, meta, err := ledger.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded checkpoint",
		slog.String("path", path),
		slog.String("run_id", meta.RunID),
		slog.Int("keys", len(l.Keys())),
		slog.Int("urls", l.Len()),
	)
	return l, nil
}

func collect(ctx context.Context, cfg config.Config, kind tiktok.EntityKind, factory *tiktok.SessionFactory, logger *slog.Logger) (*ledger.Ledger, error) {
	if len(cfg.Hashtags) == 0 {
		return nil, errors.New("no hashtags: set HASHTAGS or -hashtags")
	}

	opener := collector.OpenerFunc(func(ctx context.Context) (collector.Session, error) {
		s, err := factory.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	agg := ledger.NewAggregator(collector.New(opener, cfg.CollectPolicy(), logger), kind, logger)

	start := time.Now()
	l := agg.Build(ctx, cfg.Hashtags, cfg.VideosPerHashtag)

	path, err := ledger.Save(cfg.TempDir, l, ledger.Meta{
		Kind:         string(kind),
		TargetPerKey: cfg.VideosPerHashtag,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("collection finished",
		slog.String("checkpoint", path),
		slog.Int("urls", l.Len()),
		slog.Duration("took", time.Since(start)),
	)
	return l, nil
}

func extractAll(ctx context.Context, cfg config.Config, l *ledger.Ledger, factory *tiktok.SessionFactory, logger *slog.Logger) error {
	pages, err := factory.NewScraper()
	if err != nil {
		return err
	}
	defer pages.Close()

	store, err := progress.Open(cfg.ProgressPath())
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.BeginRun(ctx, l.Keys()); err != nil {
		return err
	}

	comments := extract.CommentOpenerFunc(func(ctx context.Context) (extract.CommentSession, error) {
		s, err := factory.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	workbook := sink.NewWorkbook(cfg.WorkbookPath())
	ex := extract.New(extract.Sources{
		Documents: pages,
		Subtitles: pages,
		Comments:  comments,
	}, workbook, extractOptions(cfg), logger).WithProgress(store)

	stats := ex.Run(ctx, l.Items())

	counts, err := store.Counts(ctx)
	if err != nil {
		logger.Warn("progress counts", slog.Any("error", err))
	}
	printSummary(workbook.Path(), stats, counts)
	return ctx.Err()
}

// extractOptions overlays the configured limits and pacing on the extractor
// defaults.
func extractOptions(cfg config.Config) extract.Options {
	opts := extract.DefaultOptions()
	opts.Comments = cfg.CommentsPerVideo
	opts.CommentPolicy = cfg.CommentPolicy()
	if cfg.SubtitleTimeout > 0 {
		opts.SubtitleTimeout = cfg.SubtitleTimeout
	}
	opts.Delay = cfg.VideoDelay
	opts.Jitter = cfg.VideoDelay / 2
	return opts
}

func printAuthor(a tiktok.Author) {
	fmt.Printf("User:      %s\n", a.Username)
	fmt.Printf("ID:        %s\n", a.ID)
	fmt.Printf("Followers: %d\n", a.FollowerCount)
	fmt.Printf("Following: %d\n", a.FollowingCount)
	fmt.Printf("Videos:    %d\n", a.VideoCount)
	fmt.Printf("Verified:  %v\n", a.Verified)
	fmt.Printf("Bio:       %s\n", a.Bio)
}

func printSummary(path string, st extract.Stats, counts map[progress.Status]int) {
	fmt.Printf("Workbook:  %s\n", filepath.Clean(path))
	fmt.Printf("Extracted: %d videos, %d comments\n", st.Processed, st.Comments)
	fmt.Printf("Skipped:   %d (no item data)\n", st.Skipped)
	fmt.Printf("Failed:    %d\n", st.Failed)
	fmt.Printf("Partial:   %d (video row written, comments missing)\n", st.Partial)
	fmt.Printf("Resumed:   %d already done\n", st.Resumed)
	if len(counts) > 0 {
		fmt.Printf("All runs:  %d done, %d partial, %d skipped, %d failed\n",
			counts[progress.StatusDone], counts[progress.StatusPartial],
			counts[progress.StatusSkipped], counts[progress.StatusFailed])
	}
}
