// Package export writes log entries as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/sweeney/gas-monitor/internal/protocol"
	"github.com/sweeney/gas-monitor/internal/store"
)

// Header is the first CSV row.
var Header = []string{"Timestamp", "Gas Value (ppm)", "Threshold", "Auto", "Buzzer", "LED", "Status"}

// Status values in the last CSV column.
const (
	StatusNormal  = "NORMAL"
	StatusWarning = "WARNING"
)

const missing = "-"

// Format names accepted by Write.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Status classifies an entry. Entries logged without a threshold are judged
// against the firmware default.
func Status(e store.Entry) string {
	threshold := e.Threshold
	if threshold == 0 {
		threshold = protocol.DefaultThreshold
	}
	if e.Gas > threshold {
		return StatusWarning
	}
	return StatusNormal
}

// Row returns the CSV fields for e.
func Row(e store.Entry) []string {
	threshold := missing
	if e.Threshold != 0 {
		threshold = strconv.Itoa(e.Threshold)
	}
	return []string{
		e.Timestamp.Local().Format(store.TimestampLayout),
		strconv.Itoa(e.Gas),
		threshold,
		orMissing(e.Auto),
		orMissing(e.Buzzer),
		orMissing(e.LED),
		Status(e),
	}
}

func orMissing(s protocol.Switch) string {
	if s == "" {
		return missing
	}
	return string(s)
}

// WriteCSV writes the header and one row per entry. It returns the number of
// rows written.
func WriteCSV(w io.Writer, entries iter.Seq[store.Entry]) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	n := 0
	for e := range entries {
		if err := cw.Write(Row(e)); err != nil {
			return n, fmt.Errorf("write csv row: %w", err)
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("write csv: %w", err)
	}
	return n, nil
}

// WriteJSON writes entries as an indented JSON array in the log file format.
func WriteJSON(w io.Writer, entries iter.Seq[store.Entry]) (int, error) {
	records := []store.Record{}
	for e := range entries {
		records = append(records, store.ToRecord(e))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("write json: %w", err)
	}
	return len(records), nil
}

// Write dispatches on format.
func Write(w io.Writer, format string, entries iter.Seq[store.Entry]) (int, error) {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, entries)
	case FormatJSON:
		return WriteJSON(w, entries)
	}
	return 0, fmt.Errorf("unknown export format %q", format)
}
