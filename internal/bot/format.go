package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"

	timeLayout = "2006-01-02 15:04 UTC"
)

// FormatStatus formats the system status record.
func FormatStatus(st *model.SystemStatus) string {
	var b strings.Builder
	if st.IsMonitoringRunning {
		fmt.Fprintf(&b, "Running: %s", st.CurrentTask)
		if st.TaskStartTime != nil {
			fmt.Fprintf(&b, " (since %s)", st.TaskStartTime.UTC().Format(timeLayout))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Idle\n")
	}
	if st.LastCompletionTime != nil {
		fmt.Fprintf(&b, "Last completion: %s\n", st.LastCompletionTime.UTC().Format(timeLayout))
	}
	if st.Message != "" {
		fmt.Fprintf(&b, "Last message: %s\n", st.Message)
	}
	return b.String()
}

// FormatQuota formats today's request counter against the daily limit.
func FormatQuota(rec model.QuotaRecord, maxDaily int) string {
	remaining := maxDaily - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("Quota for %s: %d of %d requests used, %d remaining.", rec.Date, rec.Count, maxDaily, remaining)
}

// FormatHistorical formats the progress of the historical backfill.
func FormatHistorical(hs model.HistoricalStatus) string {
	if hs.StartDate == nil {
		return "Historical start date is not configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Backfill down to %s\n", hs.StartDate.Format(model.DateLayout))
	switch {
	case hs.Completed:
		b.WriteString("Completed.\n")
	case hs.NextDay != nil:
		fmt.Fprintf(&b, "Next day to collect: %s\n", hs.NextDay.Format(model.DateLayout))
	}
	if hs.LastInterruptionDate != nil {
		fmt.Fprintf(&b, "Interrupted after %s\n", hs.LastInterruptionDate.Format(model.DateLayout))
	}
	return b.String()
}

// FormatQueries formats the search query of each group.
func FormatQueries(queries map[model.SearchGroup]string) string {
	var b strings.Builder
	for _, g := range model.Groups {
		q := queries[g]
		if q == "" {
			q = "(no terms)"
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", g, q)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSystemLogs formats the task history, newest first.
func FormatSystemLogs(logs []model.SystemLog) string {
	if len(logs) == 0 {
		return "No task executions yet."
	}
	var b strings.Builder
	b.WriteString("Recent tasks:\n")
	for _, l := range logs {
		fmt.Fprintf(&b, "\n%s %s [%s]\n   %d saved in %s\n",
			l.StartTime.UTC().Format(timeLayout), l.Task, l.Status,
			l.ProcessedCount, l.EndTime.Sub(l.StartTime).Round(time.Second))
	}
	return b.String()
}

// FormatTrending formats trending searches.
func FormatTrending(items []model.TrendingSearch) string {
	if len(items) == 0 {
		return "No trending search matched a watched term yet."
	}
	var b strings.Builder
	b.WriteString("Trending searches:\n")
	for _, ts := range items {
		fmt.Fprintf(&b, "\n%s", ts.Title)
		if ts.ApproxTraffic != "" {
			fmt.Fprintf(&b, " (%s)", ts.ApproxTraffic)
		}
		b.WriteString("\n")
		if len(ts.MatchedTerms) > 0 {
			fmt.Fprintf(&b, "   matched: %s\n", strings.Join(ts.MatchedTerms, ", "))
		}
	}
	return b.String()
}

// FormatTrendAlert formats a trending search that matched watched terms as a
// notification.
func FormatTrendAlert(ts model.TrendingSearch) string {
	var b strings.Builder
	b.WriteString("[Google Trends]\n\n")
	b.WriteString(ts.Title)
	if ts.ApproxTraffic != "" {
		fmt.Fprintf(&b, " (%s searches)", ts.ApproxTraffic)
	}
	if len(ts.MatchedTerms) > 0 {
		fmt.Fprintf(&b, "\n\nMatched: %s", strings.Join(ts.MatchedTerms, ", "))
	}
	if ts.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(ts.Link)
	}
	return b.String()
}

// FormatTermList formats watched terms with their state.
func FormatTermList(terms []model.TrendTerm) string {
	if len(terms) == 0 {
		return "No watched terms. Use /addterm <term> to add one."
	}
	var b strings.Builder
	b.WriteString("Watched terms:\n")
	for _, t := range terms {
		status := statusActive
		if !t.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "  %s [%s]\n", t.Term, status)
	}
	return b.String()
}
