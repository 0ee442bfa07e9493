package serial

import (
	"errors"
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// Defaults for RealOpener.
const (
	DefaultBaud        = 9600
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultSettle      = 2 * time.Second
)

// RealOpener opens hardware serial ports.
type RealOpener struct {
	Baud        int
	ReadTimeout time.Duration
	// Settle is how long to wait after opening before reading. Boards that
	// reset on DTR need this to finish booting; stale input is then discarded.
	Settle time.Duration
}

// NewRealOpener creates an opener with the default line settings.
func NewRealOpener() *RealOpener {
	return &RealOpener{
		Baud:        DefaultBaud,
		ReadTimeout: DefaultReadTimeout,
		Settle:      DefaultSettle,
	}
}

func (o *RealOpener) mode() *bugst.Mode {
	baud := o.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &bugst.Mode{BaudRate: baud}
}

// Open opens target and configures the read timeout.
func (o *RealOpener) Open(target string) (Port, error) {
	p, err := bugst.Open(target, o.mode())
	if err != nil {
		return nil, classify(err)
	}

	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	if o.Settle > 0 {
		time.Sleep(o.Settle)
		if err := p.ResetInputBuffer(); err != nil {
			p.Close()
			return nil, fmt.Errorf("reset input buffer: %w", err)
		}
	}
	return p, nil
}

// Release opens and immediately closes target, clearing a handle left open
// by a crashed session on platforms that allow it.
func (o *RealOpener) Release(target string) error {
	p, err := bugst.Open(target, o.mode())
	if err != nil {
		return classify(err)
	}
	return p.Close()
}

// List returns the names of the serial ports present on the host.
func (o *RealOpener) List() ([]string, error) {
	return bugst.GetPortsList()
}

// classify maps port library error codes onto this package's sentinels.
func classify(err error) error {
	var pe *bugst.PortError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code() {
	case bugst.PortBusy:
		return fmt.Errorf("%w: %v", ErrPortBusy, err)
	case bugst.PortNotFound:
		return fmt.Errorf("%w: %v", ErrPortNotFound, err)
	case bugst.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrPermission, err)
	}
	return err
}
