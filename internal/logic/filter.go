package logic

// Accept reports whether current differs enough from previous to be logged.
// A nil previous means nothing has been accepted yet.
func Accept(previous *int, current int) bool {
	if previous == nil {
		return true
	}
	d := current - *previous
	if d < 0 {
		d = -d
	}
	return d >= DeltaThreshold
}

// Gate remembers the last accepted reading and applies Accept to new ones.
// Not safe for concurrent use.
type Gate struct {
	last *int
}

// Offer returns true and records v if it passes the delta filter.
// Rejected values do not move the reference point.
func (g *Gate) Offer(v int) bool {
	if !Accept(g.last, v) {
		return false
	}
	g.last = &v
	return true
}

// Last returns the last accepted value.
func (g *Gate) Last() (int, bool) {
	if g.last == nil {
		return 0, false
	}
	return *g.last, true
}

// Reset forgets the last accepted value; the next offer is always accepted.
func (g *Gate) Reset() {
	g.last = nil
}
