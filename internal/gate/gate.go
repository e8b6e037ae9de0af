package gate

import (
	"context"
	"sync"

	"github.com/ksred/holdings-ingest/internal/types"
	"github.com/ksred/holdings-ingest/internal/watchlist"
)

// Decision is the outcome of evaluating one filing sighting.
type Decision int

const (
	Unseen Decision = iota
	Irrelevant
	AlreadyProcessed
	Admitted
)

func (d Decision) String() string {
	switch d {
	case Irrelevant:
		return "irrelevant"
	case AlreadyProcessed:
		return "already_processed"
	case Admitted:
		return "admitted"
	default:
		return "unseen"
	}
}

// Store is the durable existence check behind the seen set.
type Store interface {
	FilingExists(ctx context.Context, accessionNumber string) (bool, error)
}

// Session carries the per-run dedup state: the accession numbers handled
// so far and the watch list snapshot for the current cycle. The seen set
// is not persisted; after a restart the store check alone prevents
// duplicate ingestion.
type Session struct {
	store Store

	mu       sync.RWMutex
	seen     map[string]struct{}
	snapshot *watchlist.Snapshot
}

// NewSession creates a gate session with an empty seen-set over the given
// watch list snapshot.
func NewSession(store Store, snapshot *watchlist.Snapshot) *Session {
	return &Session{
		store:    store,
		seen:     make(map[string]struct{}),
		snapshot: snapshot,
	}
}

// SetWatchList pins the snapshot used by Evaluate until the next call.
func (s *Session) SetWatchList(snapshot *watchlist.Snapshot) {
	s.mu.Lock()
	s.snapshot = snapshot
	s.mu.Unlock()
}

// WatchList returns the snapshot the session currently filters against.
func (s *Session) WatchList() *watchlist.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Evaluate decides what to do with a filing. Watch list membership is
// checked first so untracked filers never cost a store round-trip. A store
// hit is recorded in the seen set. Admitted filings are not recorded; the
// caller marks them with MarkSeen once they are durably ingested.
func (s *Session) Evaluate(ctx context.Context, desc *types.FilingDescriptor) (Decision, error) {
	if !s.WatchList().Contains(desc.CIK) {
		return Irrelevant, nil
	}
	if s.Seen(desc.AccessionNumber) {
		return AlreadyProcessed, nil
	}

	exists, err := s.store.FilingExists(ctx, desc.AccessionNumber)
	if err != nil {
		return Unseen, err
	}
	if exists {
		s.MarkSeen(desc.AccessionNumber)
		return AlreadyProcessed, nil
	}
	return Admitted, nil
}

// MarkSeen records a filing as handled. Callers mark only after the
// filing and its holdings are persisted.
func (s *Session) MarkSeen(accessionNumber string) {
	s.mu.Lock()
	s.seen[accessionNumber] = struct{}{}
	s.mu.Unlock()
}

// Seen reports whether the accession number is in the seen-set.
func (s *Session) Seen(accessionNumber string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[accessionNumber]
	return ok
}

func (s *Session) SeenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
