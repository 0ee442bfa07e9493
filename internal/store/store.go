// Package store keeps the delta-filtered gas log: an ordered in-memory slice
// mirrored to a single JSON snapshot file, with age-based retention pruning.
package store

import (
	"iter"
	"sync"
	"time"

	"github.com/sweeney/gas-monitor/internal/protocol"
)

// Defaults for the retention store.
const (
	DefaultSaveEvery = 10
	DefaultRetention = 30 * 24 * time.Hour
)

// Entry is one logged reading. Timestamps have second resolution.
// Threshold, LED, Buzzer and Auto record the device context at log time;
// they are zero for entries written by older versions.
type Entry struct {
	Timestamp time.Time
	Gas       int
	Threshold int
	LED       protocol.Switch
	Buzzer    protocol.Switch
	Auto      protocol.Switch
}

// EntryFromStatus builds a log entry from a telemetry record.
func EntryFromStatus(rec protocol.StatusRecord) Entry {
	return Entry{
		Timestamp: rec.Timestamp,
		Gas:       rec.Gas,
		Threshold: rec.Threshold,
		LED:       rec.LED,
		Buzzer:    rec.Buzzer,
		Auto:      rec.Auto,
	}
}

// Options configures a Store.
type Options struct {
	// SaveEvery writes the snapshot after this many appends. 1 saves on every
	// append. Zero uses DefaultSaveEvery.
	SaveEvery int
	// Now is the clock used by Prune. Nil uses time.Now.
	Now func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	path      string
	saveEvery int
	now       func() time.Time

	mu      sync.Mutex
	entries []Entry
	pending int // appends since the last successful save
}

// New creates an empty store backed by path. It does not touch the file;
// call Load to read an existing snapshot.
func New(path string, opts Options) *Store {
	s := &Store{
		path:      path,
		saveEvery: opts.SaveEvery,
		now:       opts.Now,
	}
	if s.saveEvery <= 0 {
		s.saveEvery = DefaultSaveEvery
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Append adds an entry at the end of the log. Every SaveEvery appends the
// snapshot is written; a failed write returns a *PersistenceError but the
// entry stays in memory and will be retried with the next batch.
func (s *Store) Append(e Entry) error {
	e.Timestamp = e.Timestamp.Truncate(time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	s.pending++
	if s.pending < s.saveEvery {
		return nil
	}
	return s.saveLocked()
}

// Flush writes the snapshot if any appends are not yet on disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return nil
	}
	return s.saveLocked()
}

// Prune removes entries older than now-olderThan and returns how many were
// removed. The snapshot is rewritten only when something was removed.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	return s.removeWhere(func(e Entry) bool {
		return e.Timestamp.Before(cutoff)
	})
}

// PruneRange removes entries whose timestamp falls within [from, to].
func (s *Store) PruneRange(from, to time.Time) (int, error) {
	f := Filter{From: from, To: to}
	return s.removeWhere(f.Match)
}

func (s *Store) removeWhere(drop func(Entry) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Build a fresh slice: iterators handed out by Query keep reading the old one.
	kept := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	s.entries = kept
	return removed, s.saveLocked()
}

// Query returns the entries matching f in insertion order. The sequence is
// lazy and can be ranged over any number of times; each pass sees the log
// as it was when that pass started.
func (s *Store) Query(f Filter) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range s.view() {
			if !f.Match(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// All returns every entry in insertion order.
func (s *Store) All() iter.Seq[Entry] {
	return s.Query(Filter{})
}

// Recent returns a copy of the last n entries, oldest first.
func (s *Store) Recent(n int) []Entry {
	v := s.view()
	if n < 0 {
		n = 0
	}
	if n < len(v) {
		v = v[len(v)-n:]
	}
	out := make([]Entry, len(v))
	copy(out, v)
	return out
}

// Last returns the most recent entry.
func (s *Store) Last() (Entry, bool) {
	v := s.view()
	if len(v) == 0 {
		return Entry{}, false
	}
	return v[len(v)-1], true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// view returns the current slice header. Entries below its length are never
// modified in place, so it is safe to read without the lock.
func (s *Store) view() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[:len(s.entries):len(s.entries)]
}
