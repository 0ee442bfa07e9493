package protocol

import (
	"strconv"
	"strings"
	"time"
)

// TelemetryPrefix starts every status line sent by the device.
const TelemetryPrefix = "GAS:"

// fieldKeys lists the status line fields in wire order.
var fieldKeys = [...]string{"GAS", "LED", "BUZZER", "AUTO", "THRESHOLD"}

// IsTelemetry reports whether line looks like a status line.
// Other non-empty lines are free-form device messages (command acknowledgements, boot banners).
func IsTelemetry(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), TelemetryPrefix)
}

// Parse decodes a status line of the form
//
//	GAS:<int>,LED:<ON|OFF>,BUZZER:<ON|OFF>,AUTO:<ON|OFF>,THRESHOLD:<int>
//
// stamping the record with at. Any deviation returns a *ParseError.
func Parse(line string, at time.Time) (StatusRecord, error) {
	trimmed := strings.TrimSpace(line)
	parts := strings.Split(trimmed, ",")
	if len(parts) != len(fieldKeys) {
		return StatusRecord{}, &ParseError{
			Line:   line,
			Reason: "expected " + strconv.Itoa(len(fieldKeys)) + " fields, got " + strconv.Itoa(len(parts)),
		}
	}

	var values [len(fieldKeys)]string
	for i, part := range parts {
		key, value, ok := strings.Cut(part, ":")
		if !ok || key != fieldKeys[i] {
			return StatusRecord{}, &ParseError{Line: line, Field: fieldKeys[i], Reason: "missing " + fieldKeys[i] + ": prefix"}
		}
		values[i] = value
	}

	gas, err := parseInt(line, "GAS", values[0], MinGas, MaxGas)
	if err != nil {
		return StatusRecord{}, err
	}
	led, err := parseSwitch(line, "LED", values[1])
	if err != nil {
		return StatusRecord{}, err
	}
	buzzer, err := parseSwitch(line, "BUZZER", values[2])
	if err != nil {
		return StatusRecord{}, err
	}
	auto, err := parseSwitch(line, "AUTO", values[3])
	if err != nil {
		return StatusRecord{}, err
	}
	threshold, err := parseInt(line, "THRESHOLD", values[4], MinThreshold, MaxThreshold)
	if err != nil {
		return StatusRecord{}, err
	}

	return StatusRecord{
		Gas:       gas,
		LED:       led,
		Buzzer:    buzzer,
		Auto:      auto,
		Threshold: threshold,
		Timestamp: at,
	}, nil
}

// Format renders a record in wire form. It is the inverse of Parse.
func Format(r StatusRecord) string {
	var b strings.Builder
	b.WriteString("GAS:")
	b.WriteString(strconv.Itoa(r.Gas))
	b.WriteString(",LED:")
	b.WriteString(string(r.LED))
	b.WriteString(",BUZZER:")
	b.WriteString(string(r.Buzzer))
	b.WriteString(",AUTO:")
	b.WriteString(string(r.Auto))
	b.WriteString(",THRESHOLD:")
	b.WriteString(strconv.Itoa(r.Threshold))
	return b.String()
}

func parseInt(line, field, raw string, min, max int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Line: line, Field: field, Reason: "not an integer: " + strconv.Quote(raw)}
	}
	if n < min || n > max {
		return 0, &ParseError{Line: line, Field: field, Reason: "out of range " + strconv.Itoa(min) + "-" + strconv.Itoa(max)}
	}
	return n, nil
}

func parseSwitch(line, field, raw string) (Switch, error) {
	switch Switch(raw) {
	case On:
		return On, nil
	case Off:
		return Off, nil
	}
	return "", &ParseError{Line: line, Field: field, Reason: "want ON or OFF, got " + strconv.Quote(raw)}
}
