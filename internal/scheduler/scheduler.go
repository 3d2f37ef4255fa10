// Package scheduler runs the periodic collection tasks and the Google Trends
// feed check on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/bot"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/fetcher"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
)

// Disabled turns a schedule off.
const Disabled = "off"

// Runner runs a collection task in the foreground.
type Runner interface {
	Run(ctx context.Context, task monitor.Task) (monitor.Report, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Store is the trends persistence the feed check needs.
type Store interface {
	ListTrendTerms(ctx context.Context, activeOnly bool) ([]model.TrendTerm, error)
	SaveTrendingSearch(ctx context.Context, ts *model.TrendingSearch) (bool, error)
}

// Config holds the cron specs of each job. An empty or "off" spec disables
// the job.
type Config struct {
	Continuous    string
	Historical    string
	Trends        string
	TrendsFeedURL string
	Location      *time.Location
}

// Scheduler owns the cron instance and the jobs registered on it.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	store    Store
	fetcher  *fetcher.Fetcher
	notifier Notifier
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	pause    time.Duration
	// wg tracks the startup trends check, which runs outside cron.
	wg sync.WaitGroup
}

// New creates a Scheduler using the default HTTP client for the trends feed.
// runner may be nil when search is not configured, in which case only the
// trends job is scheduled. notifier may be nil.
func New(runner Runner, store Store, notifier Notifier, cfg Config, log *slog.Logger) *Scheduler {
	return NewWithFetcher(runner, store, fetcher.New(http.DefaultClient), notifier, cfg, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(runner Runner, store Store, f *fetcher.Fetcher, notifier Notifier, cfg Config, log *slog.Logger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:   runner,
		store:    store,
		fetcher:  f,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		pause:    50 * time.Millisecond,
	}
}

// Start registers the enabled jobs and starts the cron loop. The trends
// feed is also checked once right away so matches show up without waiting
// for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.runner != nil {
		for _, job := range []struct {
			spec string
			task monitor.Task
		}{
			{s.cfg.Continuous, monitor.TaskContinuous},
			{s.cfg.Historical, monitor.TaskHistorical},
		} {
			if !enabled(job.spec) {
				continue
			}
			task := job.task
			if _, err := s.cron.AddFunc(job.spec, func() { s.runTask(ctx, task) }); err != nil {
				return fmt.Errorf("schedule %s %q: %w", task, job.spec, err)
			}
			s.log.Info("job scheduled", "job", task, "spec", job.spec)
		}
	}

	trends := enabled(s.cfg.Trends) && s.cfg.TrendsFeedURL != ""
	if trends {
		if _, err := s.cron.AddFunc(s.cfg.Trends, func() { s.checkTrends(ctx) }); err != nil {
			return fmt.Errorf("schedule trends %q: %w", s.cfg.Trends, err)
		}
		s.log.Info("job scheduled", "job", "trends", "spec", s.cfg.Trends)
	}

	s.cron.Start()
	if trends {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.checkTrends(ctx)
		}()
	}
	return nil
}

// Stop stops scheduling new runs and waits for running jobs, including the
// startup trends check, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func enabled(spec string) bool {
	spec = strings.TrimSpace(spec)
	return spec != "" && !strings.EqualFold(spec, Disabled)
}

func (s *Scheduler) runTask(ctx context.Context, task monitor.Task) {
	report, err := s.runner.Run(ctx, task)
	switch {
	case errors.Is(err, monitor.ErrBusy):
		s.log.Info("scheduled task skipped, another task is running", "task", task)
	case err != nil:
		s.log.Error("scheduled task failed", "task", task, "error", err)
	default:
		s.log.Info("scheduled task finished", "task", task, "saved", report.Saved)
	}
}

func (s *Scheduler) checkTrends(ctx context.Context) {
	if _, err := s.CheckTrends(ctx); err != nil {
		s.log.Error("check trends", "error", err)
	}
}

// CheckTrends fetches the trending searches feed, stores its items with the
// watched terms they match, and notifies about new matched items. It returns
// the number of notifications sent.
func (s *Scheduler) CheckTrends(ctx context.Context) (int, error) {
	feed, err := s.fetcher.Fetch(ctx, s.cfg.TrendsFeedURL)
	if err != nil {
		return 0, fmt.Errorf("fetch trends feed: %w", err)
	}

	active, err := s.store.ListTrendTerms(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list trend terms: %w", err)
	}
	terms := make([]string, 0, len(active))
	for _, t := range active {
		terms = append(terms, t.Term)
	}

	sent := 0
	for _, ts := range fetcher.TrendingSearches(feed.Items, terms, s.now()) {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		isNew, err := s.store.SaveTrendingSearch(ctx, &ts)
		if err != nil {
			s.log.Error("save trending search", "id", ts.ID, "error", err)
			continue
		}
		if !isNew || len(ts.MatchedTerms) == 0 || s.notifier == nil {
			continue
		}

		if err := s.notifier.Notify(ctx, bot.FormatTrendAlert(ts)); err != nil {
			s.log.Warn("notify trend", "title", ts.Title, "error", err)
		}
		sent++

		// Rate limit: ~20 messages/sec max for Telegram
		time.Sleep(s.pause)
	}

	if sent > 0 {
		s.log.Info("sent trend notifications", "count", sent)
	}
	return sent, nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
