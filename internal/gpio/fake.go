package gpio

import "sync"

// FakeAlarm is a test double that records every Set call.
type FakeAlarm struct {
	mu sync.Mutex

	// Calls contains the value of every Set call in order.
	Calls []bool

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeAlarm creates an inactive FakeAlarm.
func NewFakeAlarm() *FakeAlarm {
	return &FakeAlarm{}
}

// Set records the value.
func (f *FakeAlarm) Set(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Calls = append(f.Calls, active)
	return nil
}

// Active reports the last value set.
func (f *FakeAlarm) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls) > 0 && f.Calls[len(f.Calls)-1]
}

// Close marks the alarm as closed.
func (f *FakeAlarm) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
