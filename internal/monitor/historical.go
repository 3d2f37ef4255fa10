package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// ErrInvalidStartDate is returned for a historical boundary that is not in the past.
var ErrInvalidStartDate = errors.New("historical start date must be before today")

// Historical backfills one day at a time, from the day before the last
// interruption back to the configured start date. Without a marker it resumes
// below the oldest fully collected day of the lineage, or at yesterday for a
// fresh one. A lineage is the set of runs sharing the same start date.
func (c *Collector) Historical(ctx context.Context) (Report, error) {
	var report Report
	if c.searcher == nil {
		return report, search.ErrNotConfigured
	}

	st, err := c.HistoricalStatus(ctx)
	if err != nil {
		return report, err
	}
	if st.StartDate == nil {
		report.Message = "historical start date not configured"
		return report, nil
	}
	if st.Completed {
		if st.InterruptedRunID != "" {
			if err := c.store.ClearInterruptions(ctx); err != nil {
				return report, fmt.Errorf("clear interruptions: %w", err)
			}
		}
		report.Completed = true
		report.Message = "historical backfill already complete"
		return report, nil
	}

	terms, err := c.store.GetSearchTerms(ctx)
	if err != nil {
		return report, fmt.Errorf("load search terms: %w", err)
	}
	queries := Queries(terms)
	if queries[model.GroupBrand] == "" && queries[model.GroupCompetitors] == "" {
		report.Message = "no search terms configured"
		return report, nil
	}

	boundary := *st.StartDate
	var last *model.Run
	// abort keeps the lineage resumable at day when the cycle stops early.
	abort := func(day time.Time, err error) (Report, error) {
		if last != nil {
			if merr := c.store.MarkRunInterrupted(context.WithoutCancel(ctx), last.ID, day.AddDate(0, 0, 1)); merr != nil {
				c.log.Error("mark run interrupted", "run_id", last.ID, "error", merr)
			}
		}
		return report, err
	}

	for day := *st.NextDay; !day.Before(boundary); day = day.AddDate(0, 0, -1) {
		for _, g := range model.Groups {
			query := queries[g]
			if query == "" {
				continue
			}
			remaining, err := c.quota.Remaining(ctx)
			if err != nil {
				return abort(day, err)
			}
			if remaining == 0 {
				report.QuotaExhausted = true
				return report, c.interrupt(ctx, last, day)
			}

			d, lineage := day, boundary
			run := &model.Run{
				SearchTermsQuery:       query,
				SearchGroup:            g,
				SearchType:             model.SearchHistorical,
				RangeStart:             &d,
				RangeEnd:               &d,
				HistoricalRunStartDate: &lineage,
			}
			out, err := c.collect(ctx, run, min(MaxPages, remaining), search.Options{From: d, To: d}, false)
			report.addRun(out)
			if out.run != nil {
				last = out.run
			}
			if err != nil {
				return abort(day, err)
			}
			if out.searchErr != nil {
				report.Message = fmt.Sprintf("search failed on %s", day.Format(model.DateLayout))
				return abort(day, nil)
			}
		}
	}

	if err := c.store.ClearInterruptions(ctx); err != nil {
		return report, fmt.Errorf("clear interruptions: %w", err)
	}
	report.Completed = true
	c.log.Info("historical backfill complete", "start_date", boundary.Format(model.DateLayout))
	return report, nil
}

// interrupt marks the last run written by this invocation so the next
// invocation resumes at day, redoing any group already collected for it.
// Without a run written in this invocation the existing marker already points
// at the resume day.
func (c *Collector) interrupt(ctx context.Context, last *model.Run, day time.Time) error {
	c.log.Warn("daily quota exhausted, historical backfill interrupted", "day", day.Format(model.DateLayout))
	if last == nil {
		return nil
	}
	if err := c.store.MarkRunInterrupted(ctx, last.ID, day.AddDate(0, 0, 1)); err != nil {
		return fmt.Errorf("mark run interrupted: %w", err)
	}
	return nil
}

// HistoricalStatus reports the backfill boundary, the interruption marker and
// the next day the backfill would fetch.
func (c *Collector) HistoricalStatus(ctx context.Context) (model.HistoricalStatus, error) {
	var st model.HistoricalStatus
	boundary, err := c.store.GetHistoricalStartDate(ctx)
	if err != nil {
		return st, fmt.Errorf("load historical start date: %w", err)
	}
	if boundary == nil {
		return st, nil
	}
	st.StartDate = boundary

	run, err := c.store.InterruptedRun(ctx, *boundary)
	switch {
	case err == nil:
		st.LastInterruptionDate = run.LastInterruptionDate
		st.InterruptedRunID = run.ID
		next := run.LastInterruptionDate.AddDate(0, 0, -1)
		st.NextDay = &next
	case errors.Is(err, storage.ErrNotFound):
		next, err := c.resumeDay(ctx, *boundary)
		if err != nil {
			return st, err
		}
		st.NextDay = &next
	default:
		return st, fmt.Errorf("load interrupted run: %w", err)
	}

	st.Completed = st.NextDay.Before(*boundary)
	if st.Completed {
		st.NextDay = nil
	}
	return st, nil
}

// resumeDay derives the next day of a lineage without an interruption marker
// from its runs: the day before the oldest day on which every group with
// terms has a completed run, or yesterday when no day is complete.
func (c *Collector) resumeDay(ctx context.Context, lineage time.Time) (time.Time, error) {
	runs, err := c.store.LineageRuns(ctx, lineage)
	if err != nil {
		return time.Time{}, fmt.Errorf("load lineage runs: %w", err)
	}
	terms, err := c.store.GetSearchTerms(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("load search terms: %w", err)
	}
	var required []model.SearchGroup
	for g, q := range Queries(terms) {
		if q != "" {
			required = append(required, g)
		}
	}

	days := make(map[string]time.Time)
	done := make(map[string]map[model.SearchGroup]bool)
	for _, r := range runs {
		if r.RangeStart == nil || r.Status != model.RunCompleted {
			continue
		}
		key := r.RangeStart.Format(model.DateLayout)
		if done[key] == nil {
			days[key] = *r.RangeStart
			done[key] = make(map[model.SearchGroup]bool)
		}
		done[key][r.SearchGroup] = true
	}

	var oldest *time.Time
	for key, groups := range done {
		complete := true
		for _, g := range required {
			complete = complete && groups[g]
		}
		if day := days[key]; complete && (oldest == nil || day.Before(*oldest)) {
			oldest = &day
		}
	}
	if oldest == nil {
		return c.quota.Today().AddDate(0, 0, -1), nil
	}
	return oldest.AddDate(0, 0, -1), nil
}
