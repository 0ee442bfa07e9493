package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/sweeney/gas-monitor/internal/protocol"
)

// TimestampLayout is the on-disk timestamp format, in local time.
const TimestampLayout = "2006-01-02 15:04:05"

// Accepted when reading; older files and hand edits use other precisions.
var readLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// Record is the JSON form of an Entry.
type Record struct {
	Timestamp string `json:"timestamp"`
	GasValue  *int   `json:"gas_value,omitempty"`
	Gas       *int   `json:"gas,omitempty"` // written by the desktop app before gas_value
	Threshold int    `json:"threshold,omitempty"`
	LED       string `json:"led,omitempty"`
	Buzzer    string `json:"buzzer,omitempty"`
	Auto      string `json:"auto,omitempty"`
	// Unix pins the instant when the local timestamp is ambiguous, as in
	// the hour repeated when daylight saving time ends.
	Unix int64 `json:"unix,omitempty"`
}

// ToRecord converts an entry to its persisted form.
func ToRecord(e Entry) Record {
	gas := e.Gas
	return Record{
		Timestamp: e.Timestamp.Local().Format(TimestampLayout),
		GasValue:  &gas,
		Threshold: e.Threshold,
		LED:       string(e.LED),
		Buzzer:    string(e.Buzzer),
		Auto:      string(e.Auto),
		Unix:      e.Timestamp.Unix(),
	}
}

// FromRecord converts a persisted record to an entry.
func FromRecord(r Record) (Entry, error) {
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Entry{}, err
	}
	// A hand-edited timestamp no longer matches Unix; the text wins then.
	if r.Unix != 0 {
		if pinned := time.Unix(r.Unix, 0); pinned.Local().Format(TimestampLayout) == r.Timestamp {
			ts = pinned
		}
	}
	var gas int
	switch {
	case r.GasValue != nil:
		gas = *r.GasValue
	case r.Gas != nil:
		gas = *r.Gas
	default:
		return Entry{}, errors.New("record has no gas value")
	}
	return Entry{
		Timestamp: ts.Truncate(time.Second),
		Gas:       gas,
		Threshold: r.Threshold,
		LED:       protocol.Switch(r.LED),
		Buzzer:    protocol.Switch(r.Buzzer),
		Auto:      protocol.Switch(r.Auto),
	}, nil
}

// ParseTimestamp parses a persisted timestamp. Zone-less forms are local time.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range readLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return t, nil
}

// Load replaces the in-memory log with the snapshot file. A missing file
// leaves the store empty. A file that cannot be read or decoded also leaves
// the store empty and returns a *PersistenceError; this is never fatal.
// Records with unusable timestamps are skipped and counted in the error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.pending = 0

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return &PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	entries := make([]Entry, 0, len(records))
	skipped := 0
	for _, r := range records {
		e, err := FromRecord(r)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	s.entries = entries

	if skipped > 0 {
		return &PersistenceError{Op: "load", Path: s.path, Skipped: skipped, Err: errors.New("skipped unreadable records")}
	}
	return nil
}

// Save writes the whole log to the snapshot file, replacing it atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	records := make([]Record, len(s.entries))
	for i, e := range s.entries {
		records[i] = ToRecord(e)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	s.pending = 0
	return nil
}
