package watchlist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/rs/zerolog/log"
)

// Snapshot is an immutable set of tracked CIKs. It is replaced wholesale on
// reload and never mutated after construction.
type Snapshot struct {
	ciks     map[string]struct{}
	hash     uint64
	loadedAt time.Time
}

// NewSnapshot builds a snapshot from raw identifiers, normalizing each to
// the fixed CIK width.
func NewSnapshot(ciks ...string) *Snapshot {
	s := &Snapshot{ciks: make(map[string]struct{}, len(ciks)), loadedAt: time.Now()}
	for _, cik := range ciks {
		if cik = strings.TrimSpace(cik); cik != "" {
			s.ciks[types.PadCIK(cik)] = struct{}{}
		}
	}
	return s
}

// Contains reports whether cik is tracked. Padded and unpadded forms match.
func (s *Snapshot) Contains(cik string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ciks[types.PadCIK(cik)]
	return ok
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ciks)
}

// CIKs returns the tracked identifiers in sorted order.
func (s *Snapshot) CIKs() []string {
	out := make([]string, 0, s.Len())
	if s != nil {
		for cik := range s.ciks {
			out = append(out, cik)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) Hash() uint64        { return s.hash }
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// List is the hot-reloadable watch list backed by a line-oriented file.
// Readers take Snapshot() once per cycle; reloads swap the pointer.
type List struct {
	path    string
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// Load reads the watch list file. A missing or unreadable file is an error.
func Load(path string) (*List, error) {
	l := &List{path: path}
	if _, err := l.Refresh(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) Path() string { return l.path }

// Snapshot returns the current set. Safe for concurrent use.
func (l *List) Snapshot() *Snapshot {
	return l.current.Load()
}

// Refresh re-reads the file and swaps in a new snapshot when its content
// hash differs from the current one. On error the previous snapshot stays.
func (l *List) Refresh() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("read watch list %s: %w", l.path, err)
	}

	hash := xxhash.Sum64(content)
	if cur := l.current.Load(); cur != nil && cur.hash == hash {
		return false, nil
	}

	next, err := parse(content)
	if err != nil {
		return false, fmt.Errorf("parse watch list %s: %w", l.path, err)
	}
	next.hash = hash
	l.current.Store(next)
	return true, nil
}

// Watch refreshes the list whenever the file changes on disk until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file by rename are picked up.
func (l *List) Watch(ctx context.Context) error {
	logger := log.With().Str("component", "watchlist").Str("path", l.path).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(l.path)
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info().Str("dir", dir).Msg("watching for watch list changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			changed, err := l.Refresh()
			if err != nil {
				logger.Warn().Err(err).Msg("watch list reload failed, keeping previous snapshot")
				continue
			}
			if changed {
				logger.Info().Int("ciks", l.Snapshot().Len()).Msg("watch list reloaded")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// parse reads one identifier per line. Blank lines and lines starting with
// '#' are ignored; anything else must be numeric.
func parse(content []byte) (*Snapshot, error) {
	var ciks []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !isDigits(line) || len(line) > types.CIKWidth {
			return nil, fmt.Errorf("line %d: invalid cik %q", n, line)
		}
		ciks = append(ciks, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewSnapshot(ciks...), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
