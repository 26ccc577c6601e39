package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	checkpointPrefix = "urls_"
	checkpointExt    = ".json"
	stampLayout      = "20060102T150405"
)

// ErrNoCheckpoint is returned by Latest when dir holds no checkpoint.
var ErrNoCheckpoint = errors.New("ledger: no checkpoint found")

// Meta describes the collection run a checkpoint came from.
type Meta struct {
	RunID        string    `json:"run_id"`
	CreatedAt    time.Time `json:"created_at"`
	Kind         string    `json:"kind"`
	TargetPerKey int       `json:"target_per_key"`
}

type checkpointFile struct {
	Meta
	Entries []Entry `json:"entries"`
}

// Save writes l to a timestamped checkpoint in dir and returns its path.
// The file is written to a temp file and renamed into place, so a crash
// never leaves a truncated checkpoint behind.
func Save(dir string, l *Ledger, meta Meta) (string, error) {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	meta.CreatedAt = meta.CreatedAt.UTC()

	data, err := json.MarshalIndent(checkpointFile{Meta: meta, Entries: l.Entries()}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	name := checkpointPrefix + meta.CreatedAt.Format(stampLayout) + "_" + shortID(meta.RunID) + checkpointExt
	path := filepath.Join(dir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	return path, nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*Ledger, Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp checkpointFile
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, Meta{}, fmt.Errorf("decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return FromEntries(cp.Entries), cp.Meta, nil
}

// Latest returns the newest checkpoint in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, checkpointPrefix+"*"+checkpointExt))
	if err != nil {
		return "", fmt.Errorf("list checkpoints: %w", err)
	}
	if len(matches) == 0 {
		return "", ErrNoCheckpoint
	}
	// Names start with a sortable UTC timestamp.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
