package protocol

import (
	"strconv"
	"strings"
)

// CommandKind identifies a host-to-device command.
type CommandKind string

const (
	CmdBothOn    CommandKind = "BOTH_ON"
	CmdBothOff   CommandKind = "BOTH_OFF"
	CmdLEDOn     CommandKind = "LED_ON"
	CmdLEDOff    CommandKind = "LED_OFF"
	CmdBuzzerOn  CommandKind = "BUZZER_ON"
	CmdBuzzerOff CommandKind = "BUZZER_OFF"
	CmdAutoOn    CommandKind = "AUTO_ON"
	CmdAutoOff   CommandKind = "AUTO_OFF"
	CmdThreshold CommandKind = "THRESHOLD"
)

var simpleKinds = map[CommandKind]bool{
	CmdBothOn:    true,
	CmdBothOff:   true,
	CmdLEDOn:     true,
	CmdLEDOff:    true,
	CmdBuzzerOn:  true,
	CmdBuzzerOff: true,
	CmdAutoOn:    true,
	CmdAutoOff:   true,
}

// Command is a logical request to the device. Value is only meaningful for CmdThreshold.
type Command struct {
	Kind  CommandKind
	Value int
}

// SetThreshold returns a threshold command. It is validated by Encode.
func SetThreshold(v int) Command {
	return Command{Kind: CmdThreshold, Value: v}
}

// SetLED returns LED_ON or LED_OFF.
func SetLED(on bool) Command {
	if on {
		return Command{Kind: CmdLEDOn}
	}
	return Command{Kind: CmdLEDOff}
}

// SetBuzzer returns BUZZER_ON or BUZZER_OFF.
func SetBuzzer(on bool) Command {
	if on {
		return Command{Kind: CmdBuzzerOn}
	}
	return Command{Kind: CmdBuzzerOff}
}

// SetBoth returns BOTH_ON or BOTH_OFF.
func SetBoth(on bool) Command {
	if on {
		return Command{Kind: CmdBothOn}
	}
	return Command{Kind: CmdBothOff}
}

// SetAuto returns AUTO_ON or AUTO_OFF.
func SetAuto(on bool) Command {
	if on {
		return Command{Kind: CmdAutoOn}
	}
	return Command{Kind: CmdAutoOff}
}

// String returns the wire token, or a descriptive form for invalid commands.
func (c Command) String() string {
	token, err := Encode(c)
	if err != nil {
		if c.Kind == CmdThreshold {
			return string(c.Kind) + "_" + strconv.Itoa(c.Value)
		}
		return string(c.Kind)
	}
	return token
}

// Encode returns the wire token for c, without the trailing newline.
// Threshold values outside 1-1023 are rejected with a *ValidationError.
func Encode(c Command) (string, error) {
	if simpleKinds[c.Kind] {
		return string(c.Kind), nil
	}
	if c.Kind != CmdThreshold {
		return "", &ValidationError{Command: string(c.Kind), Reason: "unknown command"}
	}
	if c.Value < MinThreshold || c.Value > MaxThreshold {
		return "", &ValidationError{
			Command: string(CmdThreshold),
			Reason:  "threshold " + strconv.Itoa(c.Value) + " outside " + strconv.Itoa(MinThreshold) + "-" + strconv.Itoa(MaxThreshold),
		}
	}
	return string(CmdThreshold) + "_" + strconv.Itoa(c.Value), nil
}

// ParseCommand decodes user input such as "led_on" or "THRESHOLD_500".
// It applies the same validation as Encode.
func ParseCommand(s string) (Command, error) {
	token := strings.ToUpper(strings.TrimSpace(s))
	if simpleKinds[CommandKind(token)] {
		return Command{Kind: CommandKind(token)}, nil
	}
	raw, ok := strings.CutPrefix(token, string(CmdThreshold)+"_")
	if !ok {
		return Command{}, &ValidationError{Command: token, Reason: "unknown command"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return Command{}, &ValidationError{Command: string(CmdThreshold), Reason: "not an integer: " + strconv.Quote(raw)}
	}
	c := SetThreshold(v)
	if _, err := Encode(c); err != nil {
		return Command{}, err
	}
	return c, nil
}
