// Package export writes decision records as CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/bmsctl/core/model"
)

// CSVHeader lists the columns written by WriteCSV.
var CSVHeader = []string{
	"tick", "time", "mode", "predicted_temp", "predicted_soc",
	"cooling", "requested_current", "adjusted_current", "over_temp_warning",
}

// WriteJSON writes the records to w as a JSON array.
func WriteJSON(w io.Writer, recs []model.TickRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes the records to w with a header row.
func WriteCSV(w io.Writer, recs []model.TickRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(csvRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r model.TickRecord) []string {
	d := r.Decision
	ts := ""
	if !r.Time.IsZero() {
		ts = r.Time.Format(time.RFC3339Nano)
	}
	return []string{
		strconv.Itoa(r.Tick),
		ts,
		d.Mode.String(),
		strconv.FormatFloat(d.PredictedTemp, 'f', -1, 64),
		strconv.FormatFloat(d.PredictedSoC, 'f', -1, 64),
		d.Cooling.String(),
		strconv.FormatFloat(d.RequestedCurrent, 'f', -1, 64),
		strconv.FormatFloat(d.AdjustedCurrent, 'f', -1, 64),
		strconv.FormatBool(d.OverTempWarning),
	}
}

// Write encodes recs in the named format ("csv" or "json").
func Write(w io.Writer, format string, recs []model.TickRecord) error {
	switch strings.ToLower(format) {
	case "csv":
		return WriteCSV(w, recs)
	case "json":
		return WriteJSON(w, recs)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriterSink streams decisions to w as they are emitted: CSV rows after a
// header, or one JSON object per line.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	csv    *csv.Writer
	header bool
	now    func() time.Time
}

// NewWriterSink returns a streaming sink in the named format.
func NewWriterSink(w io.Writer, format string) (*WriterSink, error) {
	format = strings.ToLower(format)
	if format != "csv" && format != "json" {
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	s := &WriterSink{w: w, format: format, now: time.Now}
	if format == "csv" {
		s.csv = csv.NewWriter(w)
	}
	return s, nil
}

// Emit writes one record.
func (s *WriterSink) Emit(tick int, d model.ControlDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := model.TickRecord{Tick: tick, Time: s.now(), Decision: d}
	if s.format == "json" {
		return json.NewEncoder(s.w).Encode(rec)
	}
	if !s.header {
		if err := s.csv.Write(CSVHeader); err != nil {
			return err
		}
		s.header = true
	}
	if err := s.csv.Write(csvRow(rec)); err != nil {
		return err
	}
	s.csv.Flush()
	return s.csv.Error()
}
