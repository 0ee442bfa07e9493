package store

import "fmt"

// PersistenceError reports a failure to read or write the log snapshot.
// The store keeps operating in memory after one.
type PersistenceError struct {
	Op      string // "load" or "save"
	Path    string
	Skipped int // records dropped during load
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Skipped > 0 {
		return fmt.Sprintf("%s %s: %v (%d records)", e.Op, e.Path, e.Err, e.Skipped)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
