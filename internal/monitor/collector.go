// Package monitor runs the quota-aware collection cycles and guards them
// with the system status flag.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// MaxPages is the most pages fetched per group and run.
const MaxPages = 10

// Searcher fetches result pages from the search API.
type Searcher interface {
	Paginate(ctx context.Context, query string, maxPages int, opts search.Options, visit func(search.Page) error) (int, error)
}

// Quota is the daily request budget.
type Quota interface {
	Remaining(ctx context.Context) (int, error)
	Increment(ctx context.Context, n int) error
	Today() time.Time
}

// Store is the persistence used by collection cycles.
type Store interface {
	storage.MonitorStore
	storage.ConfigStore
}

// Report summarizes a collection cycle.
type Report struct {
	Runs           int    `json:"runs"`
	FailedRuns     int    `json:"failed_runs"`
	Requests       int    `json:"requests"`
	Saved          int    `json:"saved"`
	QuotaExhausted bool   `json:"quota_exhausted"`
	Completed      bool   `json:"completed,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (r *Report) add(o Report) {
	r.Runs += o.Runs
	r.FailedRuns += o.FailedRuns
	r.Requests += o.Requests
	r.Saved += o.Saved
	r.QuotaExhausted = r.QuotaExhausted || o.QuotaExhausted
	r.Completed = o.Completed
	if o.Message != "" {
		if r.Message != "" {
			r.Message += "; "
		}
		r.Message += o.Message
	}
}

// Summary renders the report as a one-line status message.
func (r Report) Summary() string {
	s := fmt.Sprintf("%d runs (%d failed), %d requests, %d results saved", r.Runs, r.FailedRuns, r.Requests, r.Saved)
	if r.QuotaExhausted {
		s += ", daily quota exhausted"
	}
	if r.Message != "" {
		s += ": " + r.Message
	}
	return s
}

// Collector drives the search client across groups, pages and days.
type Collector struct {
	store    Store
	searcher Searcher
	quota    Quota
	log      *slog.Logger
}

// NewCollector creates a Collector. searcher may be nil when the search API
// is not configured; every cycle then fails with search.ErrNotConfigured.
func NewCollector(store Store, searcher Searcher, quota Quota, log *slog.Logger) *Collector {
	return &Collector{store: store, searcher: searcher, quota: quota, log: log}
}

// Configured reports whether a search client is available.
func (c *Collector) Configured() bool {
	return c.searcher != nil
}

// groupRun is the outcome of collecting one group for one time unit.
type groupRun struct {
	run       *model.Run
	requests  int
	saved     int
	searchErr error
}

// Relevant collects the most relevant current results of every group.
func (c *Collector) Relevant(ctx context.Context) (Report, error) {
	return c.single(ctx, model.SearchRelevant, search.Options{}, false)
}

// Continuous collects the results of the last 24 hours of every group,
// storing only results that were never seen before.
func (c *Collector) Continuous(ctx context.Context) (Report, error) {
	return c.single(ctx, model.SearchContinuous, search.Options{DateRestrict: "d1"}, true)
}

func (c *Collector) single(ctx context.Context, typ model.SearchType, opts search.Options, dedupe bool) (Report, error) {
	var report Report
	if c.searcher == nil {
		return report, search.ErrNotConfigured
	}
	terms, err := c.store.GetSearchTerms(ctx)
	if err != nil {
		return report, fmt.Errorf("load search terms: %w", err)
	}

	for _, g := range model.Groups {
		query := BuildQuery(terms.Group(g))
		if query == "" {
			c.log.Info("skip group without terms", "group", g, "type", typ)
			continue
		}
		remaining, err := c.quota.Remaining(ctx)
		if err != nil {
			return report, err
		}
		if remaining == 0 {
			c.log.Warn("daily quota exhausted", "group", g, "type", typ)
			report.QuotaExhausted = true
			break
		}

		run := &model.Run{SearchTermsQuery: query, SearchGroup: g, SearchType: typ}
		if typ == model.SearchContinuous {
			today := c.quota.Today()
			run.RangeStart, run.RangeEnd = &today, &today
		}
		out, err := c.collect(ctx, run, min(MaxPages, remaining), opts, dedupe)
		report.addRun(out)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (r *Report) addRun(g groupRun) {
	if g.run == nil {
		return
	}
	r.Runs++
	r.Requests += g.requests
	r.Saved += g.saved
	if g.searchErr != nil {
		r.FailedRuns++
	}
}

// collect creates run and fills it with up to maxPages pages of results.
// Search failures end the run as failed and are reported in the outcome;
// storage failures are returned as errors.
func (c *Collector) collect(ctx context.Context, run *model.Run, maxPages int, opts search.Options, dedupe bool) (groupRun, error) {
	out := groupRun{}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return out, fmt.Errorf("create run: %w", err)
	}
	out.run = run
	log := c.log.With("run_id", run.ID, "group", run.SearchGroup, "type", run.SearchType)

	seen := make(map[string]bool)
	var storeErr error
	requests, err := c.searcher.Paginate(ctx, run.SearchTermsQuery, maxPages, opts, func(p search.Page) error {
		if err := c.quota.Increment(ctx, 1); err != nil {
			log.Warn("increment quota", "error", err)
		}

		results := toResults(run, p.Items, seen)
		saved := 0
		if len(results) > 0 {
			var err error
			if dedupe {
				saved, err = c.store.InsertNewResults(ctx, results)
			} else {
				saved, err = c.store.UpsertResults(ctx, results)
			}
			if err != nil {
				storeErr = fmt.Errorf("save results: %w", err)
				return storeErr
			}
		}
		out.saved += saved

		entry := &model.RequestLog{
			RunID:        run.ID,
			SearchGroup:  run.SearchGroup,
			SearchType:   run.SearchType,
			Page:         p.Number + 1,
			ResultsCount: len(p.Items),
			NewURLsSaved: saved,
			RangeStart:   run.RangeStart,
			RangeEnd:     run.RangeEnd,
		}
		if p.Err != nil {
			entry.Error = p.Err.Error()
		}
		if err := c.store.CreateRequestLog(ctx, entry); err != nil {
			storeErr = fmt.Errorf("write request log: %w", err)
			return storeErr
		}
		log.Debug("fetched page", "page", entry.Page, "items", entry.ResultsCount, "saved", saved)
		return nil
	})
	out.requests = requests

	// Terminal status updates must land even if ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)
	switch {
	case storeErr != nil:
		out.searchErr = storeErr
		c.finish(finishCtx, log, run, model.RunFailed, out.saved, storeErr.Error())
		return out, storeErr
	case err != nil:
		out.searchErr = err
		log.Error("search failed", "error", err)
		c.finish(finishCtx, log, run, model.RunFailed, out.saved, err.Error())
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return out, err
		}
		return out, nil
	}
	c.finish(finishCtx, log, run, model.RunCompleted, out.saved, "")
	log.Info("run completed", "requests", requests, "saved", out.saved)
	return out, nil
}

func (c *Collector) finish(ctx context.Context, log *slog.Logger, run *model.Run, status model.RunStatus, total int, message string) {
	if err := c.store.FinishRun(ctx, run.ID, status, total, message); err != nil {
		log.Error("finish run", "status", status, "error", err)
		return
	}
	run.Status = status
	run.TotalResultsFound = total
	run.Message = message
}

func toResults(run *model.Run, items []search.Item, seen map[string]bool) []model.Result {
	results := make([]model.Result, 0, len(items))
	now := time.Now().UTC().Truncate(time.Second)
	for _, it := range items {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		seen[it.Link] = true
		results = append(results, model.Result{
			ID:          model.ResultID(it.Link),
			Link:        it.Link,
			DisplayLink: it.DisplayLink,
			Title:       it.Title,
			Snippet:     it.Snippet,
			HTMLSnippet: it.HTMLSnippet,
			Pagemap:     it.Pagemap,
			RunID:       run.ID,
			SearchGroup: run.SearchGroup,
			Status:      model.ResultPending,
			Origin:      model.OriginGoogleCSE,
			CollectedAt: now,
		})
	}
	return results
}
