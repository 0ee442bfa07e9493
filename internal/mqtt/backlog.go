package mqtt

import "log"

// Backlog bounds while the broker is unreachable. Readings arrive every
// second or so; lifecycle events only on state changes.
const (
	telemetryBacklog = 500
	systemBacklog    = 50
)

// Kind separates gas readings from lifecycle events.
type Kind int

const (
	KindTelemetry Kind = iota
	KindSystem
)

func (k Kind) String() string {
	if k == KindSystem {
		return "system"
	}
	return "telemetry"
}

// message is a serialized publish waiting for a connection.
type message struct {
	kind     Kind
	seq      uint64
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// queue is a bounded FIFO that drops its oldest message when full.
type queue struct {
	msgs  []message
	limit int
}

func (q *queue) add(m message) (dropped bool) {
	if len(q.msgs) == q.limit {
		copy(q.msgs, q.msgs[1:])
		q.msgs[len(q.msgs)-1] = m
		return true
	}
	q.msgs = append(q.msgs, m)
	return false
}

// backlog holds messages published while offline. Readings and system
// events are bounded separately so a long run of readings cannot push a
// LINK or STARTUP event out. Drain returns both kinds in publish order.
// Not safe for concurrent use; the caller must synchronize.
type backlog struct {
	queues  [2]queue
	seq     uint64
	dropped [2]uint64
	full    [2]bool // logged since the last drain
}

func newBacklog(telemetry, system int) *backlog {
	b := &backlog{}
	b.queues[KindTelemetry].limit = telemetry
	b.queues[KindSystem].limit = system
	return b
}

func (b *backlog) add(m message) {
	b.seq++
	m.seq = b.seq
	if !b.queues[m.kind].add(m) {
		return
	}
	b.dropped[m.kind]++
	if !b.full[m.kind] {
		log.Printf("mqtt: %s backlog full (%d messages), dropping oldest", m.kind, b.queues[m.kind].limit)
		b.full[m.kind] = true
	}
}

// drain empties the backlog, merging both queues by sequence number.
func (b *backlog) drain() []message {
	t := b.queues[KindTelemetry].msgs
	s := b.queues[KindSystem].msgs
	if len(t)+len(s) == 0 {
		return nil
	}

	out := make([]message, 0, len(t)+len(s))
	for len(t) > 0 && len(s) > 0 {
		if t[0].seq < s[0].seq {
			out, t = append(out, t[0]), t[1:]
		} else {
			out, s = append(out, s[0]), s[1:]
		}
	}
	out = append(out, t...)
	out = append(out, s...)

	for k := range b.queues {
		b.queues[k].msgs = nil
		b.full[k] = false
	}
	return out
}

func (b *backlog) len() int {
	return len(b.queues[KindTelemetry].msgs) + len(b.queues[KindSystem].msgs)
}
