// Package gpio drives the alarm output line with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Alarm drives an external alarm indicator (relay, beacon, LED).
type Alarm interface {
	// Set drives the line: true = alarm active.
	Set(active bool) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO chip used when none is configured.
const DefaultChip = "gpiochip0"

// DefaultPinAlarm is the default alarm output pin (BCM numbering).
const DefaultPinAlarm = 17
