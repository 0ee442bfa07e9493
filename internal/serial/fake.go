package serial

import (
	"sort"
	"sync"
)

// FakePort is a test double that returns scripted input.
type FakePort struct {
	mu       sync.Mutex
	chunks   [][]byte
	readErr  error
	writeErr error
	written  []string
	closed   bool
}

// NewFakePort creates a FakePort that yields each line, newline-terminated,
// on successive reads.
func NewFakePort(lines ...string) *FakePort {
	p := &FakePort{}
	for _, l := range lines {
		p.Feed(l + "\n")
	}
	return p
}

// Feed queues raw data to be returned by one Read.
func (p *FakePort) Feed(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, []byte(data))
}

// FailReads makes every Read after the queued data return err.
func (p *FakePort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailWrites makes every Write return err.
func (p *FakePort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Read returns the next queued chunk, or (0, nil) when none is queued.
func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if len(p.chunks) == 0 {
		return 0, p.readErr
	}
	n := copy(b, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

// Write records the data.
func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, string(b))
	return len(b), nil
}

// Close marks the port as closed.
func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Written returns everything written so far, one element per Write.
func (p *FakePort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// Closed reports whether Close was called since the last open.
func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePort) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}

// FakeOpener is a test double for Opener, Releaser and Lister.
type FakeOpener struct {
	mu       sync.Mutex
	ports    map[string]*FakePort
	failures int
	failErr  error
	opens    int
	releases int
}

// NewFakeOpener creates an opener with no ports.
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{ports: make(map[string]*FakePort)}
}

// Add makes port available as target.
func (o *FakeOpener) Add(target string, port *FakePort) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ports[target] = port
}

// Remove unplugs target.
func (o *FakeOpener) Remove(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.ports, target)
}

// FailNext makes the next n opens fail with err.
func (o *FakeOpener) FailNext(n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = n
	o.failErr = err
}

// Open returns the port registered for target.
func (o *FakeOpener) Open(target string) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.failures > 0 {
		o.failures--
		return nil, o.failErr
	}
	p, ok := o.ports[target]
	if !ok {
		return nil, ErrPortNotFound
	}
	p.reopen()
	return p, nil
}

// Release counts the call.
func (o *FakeOpener) Release(target string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releases++
	return nil
}

// List returns the registered targets in sorted order.
func (o *FakeOpener) List() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.ports))
	for name := range o.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Opens returns the number of Open calls.
func (o *FakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Releases returns the number of Release calls.
func (o *FakeOpener) Releases() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.releases
}
