// Package export writes ledger rows to external formats.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/andresmejia3/facepunch/internal/types"
)

// DefaultFile is the export target when none is given.
const DefaultFile = "attendance_export.csv"

// CSVSink writes attendance rows as CSV. Call Flush when done.
type CSVSink struct {
	w *csv.Writer

	// OnRow, when set, is called after every written row (progress reporting).
	OnRow func()
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) WriteHeader(cols []string) error {
	return s.w.Write(cols)
}

func (s *CSVSink) WriteRow(ev types.AttendanceEvent) error {
	err := s.w.Write([]string{
		ev.IdentityID,
		ev.DisplayName,
		ev.Action,
		ev.Timestamp,
		strconv.FormatFloat(ev.Confidence, 'f', -1, 64),
	})
	if err == nil && s.OnRow != nil {
		s.OnRow()
	}
	return err
}

// Flush writes buffered data and reports any write error.
func (s *CSVSink) Flush() error {
	s.w.Flush()
	return s.w.Error()
}
