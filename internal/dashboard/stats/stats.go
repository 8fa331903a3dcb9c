// Package stats computes the derived funnel aggregates: the session Summary
// and per-step StepStats. Both are linear passes over rows already fetched
// from PostgreSQL; nothing here touches the network.
package stats

import (
	"sort"

	"github.com/stepfunnel/analytics-platform/internal/funnel"
)

// ConversionRate returns completed/total as a percentage, 0 when total is 0.
func ConversionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// DropOffRate returns exits/entrances as a percentage, 0 when entrances is 0.
func DropOffRate(exits, entrances int) float64 {
	if entrances == 0 {
		return 0
	}
	return float64(exits) / float64(entrances) * 100
}

// Summarize scans the given sessions once and returns the overview Summary.
// An empty input yields all-zero fields. Abandoned sessions increment the
// drop-off counter keyed by the step they ended on.
func Summarize(sessions []funnel.Session) funnel.Summary {
	summary := funnel.Summary{
		DropOffByStep: make(map[int]int),
	}

	totalTime := 0
	for _, s := range sessions {
		summary.TotalSessions++
		totalTime += s.TimeSpentSec

		switch s.ExitReason {
		case funnel.ExitCompleted:
			summary.CompletedSessions++
		case funnel.ExitAbandoned:
			summary.AbandonedSessions++
			summary.DropOffByStep[s.CurrentStep]++
		}
	}

	if summary.TotalSessions > 0 {
		summary.AverageTimeSpent = float64(totalTime) / float64(summary.TotalSessions)
	}
	summary.ConversionRate = ConversionRate(summary.CompletedSessions, summary.TotalSessions)
	return summary
}

// stepAccumulator carries the per-step running totals during grouping.
type stepAccumulator struct {
	name      string
	entrances int
	exits     int
	timeSum   int
	timeCount int
}

// StepStatistics groups the given events by step index and returns per-step
// entrance and exit counts, the mean of every time_spent value present on any
// event of the step, and the drop-off rate. Results are sorted ascending by
// step index.
func StepStatistics(events []funnel.StepEvent) []funnel.StepStats {
	acc := make(map[int]*stepAccumulator)

	for _, e := range events {
		a, ok := acc[e.StepIndex]
		if !ok {
			a = &stepAccumulator{name: e.StepName}
			acc[e.StepIndex] = a
		}
		if a.name == "" {
			a.name = e.StepName
		}

		switch e.Action {
		case funnel.ActionEnter:
			a.entrances++
		case funnel.ActionExit:
			a.exits++
		}
		if e.TimeSpentSec != nil {
			a.timeSum += *e.TimeSpentSec
			a.timeCount++
		}
	}

	result := make([]funnel.StepStats, 0, len(acc))
	for idx, a := range acc {
		stat := funnel.StepStats{
			StepIndex:   idx,
			StepName:    a.name,
			Entrances:   a.entrances,
			Exits:       a.exits,
			DropOffRate: DropOffRate(a.exits, a.entrances),
		}
		if a.timeCount > 0 {
			stat.AverageTimeSpent = float64(a.timeSum) / float64(a.timeCount)
		}
		result = append(result, stat)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StepIndex < result[j].StepIndex
	})
	return result
}
