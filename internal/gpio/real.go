//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealAlarm drives an output line using Linux GPIO character device.
type RealAlarm struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealAlarm requests pin on chip as an output, initially inactive.
func NewRealAlarm(chip string, pin int) (*RealAlarm, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := c.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gas-monitor"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request alarm pin %d: %w", pin, err)
	}

	return &RealAlarm{chip: c, line: line}, nil
}

// Set drives the line high while the alarm is active.
func (a *RealAlarm) Set(active bool) error {
	v := 0
	if active {
		v = 1
	}
	if err := a.line.SetValue(v); err != nil {
		return fmt.Errorf("set alarm pin: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so the alarm does not stay latched after exit.
func (a *RealAlarm) Close() error {
	var errs []error

	if a.line != nil {
		if err := a.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure alarm pin: %w", err))
		}
		if err := a.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alarm pin: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
