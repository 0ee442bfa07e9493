// Package demo generates synthetic sensor telemetry when no board is attached.
package demo

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sweeney/gas-monitor/internal/protocol"
)

// Random walk parameters.
const (
	StartGas    = 200
	StepMin     = -15
	StepMax     = 20
	MinInterval = 2 * time.Second
	MaxInterval = 8 * time.Second
)

// Generator is a simulated sensor board. It is safe for concurrent use:
// the demo loop calls Next while commands arrive through Apply.
type Generator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	gas       int
	threshold int
	led       protocol.Switch
	buzzer    protocol.Switch
	auto      protocol.Switch
}

// New creates a generator in the board's power-on state: auto mode on,
// default threshold, gas at StartGas. A nil rng uses a randomly seeded one.
func New(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{
		rng:       rng,
		gas:       StartGas,
		threshold: protocol.DefaultThreshold,
		led:       protocol.Off,
		buzzer:    protocol.Off,
		auto:      protocol.On,
	}
}

// Next advances the walk by one step and returns the resulting reading.
func (g *Generator) Next(now time.Time) protocol.StatusRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	step := StepMin + g.rng.IntN(StepMax-StepMin+1)
	g.gas = min(protocol.MaxGas, max(protocol.MinGas, g.gas+step))

	if g.auto.IsOn() {
		alarm := protocol.SwitchOf(g.gas > g.threshold)
		g.led = alarm
		g.buzzer = alarm
	}

	return protocol.StatusRecord{
		Gas:       g.gas,
		LED:       g.led,
		Buzzer:    g.buzzer,
		Auto:      g.auto,
		Threshold: g.threshold,
		Timestamp: now,
	}
}

// Interval returns the delay before the next reading, uniform in
// [MinInterval, MaxInterval].
func (g *Generator) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return MinInterval + time.Duration(g.rng.Int64N(int64(MaxInterval-MinInterval)+1))
}

// Apply performs a command the way the board would. With auto mode on, the
// next reading overrides manual LED and buzzer settings.
func (g *Generator) Apply(cmd protocol.Command) error {
	if _, err := protocol.Encode(cmd); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch cmd.Kind {
	case protocol.CmdBothOn:
		g.led, g.buzzer = protocol.On, protocol.On
	case protocol.CmdBothOff:
		g.led, g.buzzer = protocol.Off, protocol.Off
	case protocol.CmdLEDOn:
		g.led = protocol.On
	case protocol.CmdLEDOff:
		g.led = protocol.Off
	case protocol.CmdBuzzerOn:
		g.buzzer = protocol.On
	case protocol.CmdBuzzerOff:
		g.buzzer = protocol.Off
	case protocol.CmdAutoOn:
		g.auto = protocol.On
	case protocol.CmdAutoOff:
		g.auto = protocol.Off
	case protocol.CmdThreshold:
		g.threshold = cmd.Value
	default:
		return fmt.Errorf("demo: unhandled command %s", cmd.Kind)
	}
	return nil
}
