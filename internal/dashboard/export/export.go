// Package export renders sessions and step statistics as CSV downloads.
// Quoting follows RFC 4180 via encoding/csv: cells containing a comma or
// quote are wrapped in quotes with internal quotes doubled.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/stepfunnel/analytics-platform/internal/dashboard/view"
	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

// Filename returns the download name for an export: the base name suffixed
// with the given date as YYYY-MM-DD.
func Filename(name string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", name, now.Format("2006-01-02"))
}

var sessionHeader = []string{
	"id", "created_at", "device", "browser", "os",
	"current_step", "time_spent_sec", "exit_reason", "client_descriptor",
}

// WriteSessions writes one row per session view, header first.
func WriteSessions(w io.Writer, views []view.SessionView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sessionHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, v := range views {
		row := []string{
			v.ID,
			v.CreatedAt.UTC().Format(time.RFC3339),
			string(v.Client.Device),
			v.Client.Browser,
			v.Client.OS,
			strconv.Itoa(v.CurrentStep),
			strconv.Itoa(v.TimeSpentSec),
			string(v.ExitReason),
			v.ClientDescriptor,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing session row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var stepHeader = []string{
	"step_index", "step_name", "entrances", "exits",
	"average_time_spent", "drop_off_rate",
}

// WriteStepStats writes one row per step, header first.
func WriteStepStats(w io.Writer, steps []funnel.StepStats) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stepHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, s := range steps {
		row := []string{
			strconv.Itoa(s.StepIndex),
			s.StepName,
			strconv.Itoa(s.Entrances),
			strconv.Itoa(s.Exits),
			strconv.FormatFloat(s.AverageTimeSpent, 'f', 2, 64),
			strconv.FormatFloat(s.DropOffRate, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing step row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
