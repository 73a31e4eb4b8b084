package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/iesdispatch/core/metrics"
)

// WriteJSON writes the dispatched schedule to w in JSON format.
func WriteJSON(w io.Writer, s metrics.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV writes the dispatched schedule to w in CSV format, one row per
// component, resource, tracker and step. The time column is empty for cases
// without a start time.
func WriteCSV(w io.Writer, s metrics.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"component", "resource", "tracker", "step", "time", "value"}); err != nil {
		return err
	}
	for _, e := range s.Entries {
		ts := ""
		if !e.Time.IsZero() {
			ts = e.Time.Format(time.RFC3339)
		}
		rec := []string{
			e.Component,
			string(e.Resource),
			string(e.Tracker),
			strconv.Itoa(e.Step),
			ts,
			strconv.FormatFloat(e.Value, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
