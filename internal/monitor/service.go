package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
)

// ErrBusy is returned when a collection task is already running.
var ErrBusy = errors.New("monitoring already running")

// Task names a background collection task.
type Task string

// Tasks.
const (
	TaskFull       Task = "full"
	TaskRelevant   Task = "relevant"
	TaskHistorical Task = "historical"
	TaskContinuous Task = "continuous"
)

// ParseTask validates a task name.
func ParseTask(s string) (Task, error) {
	switch t := Task(s); t {
	case TaskFull, TaskRelevant, TaskHistorical, TaskContinuous:
		return t, nil
	}
	return "", fmt.Errorf("unknown task %q", s)
}

// Locker is a cross-process mutual exclusion for collection tasks.
type Locker interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Service starts collection tasks under the system status flag and keeps
// their history.
type Service struct {
	collector *Collector
	store     Store
	locker    Locker
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLocker adds a cross-process lock in front of the status flag.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// NewService creates a Service.
func NewService(store Store, collector *Collector, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		collector: collector,
		store:     store,
		log:       log,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetNotifier sets the notifier used when tasks finish. It must be called
// before any task starts.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Collector returns the underlying collector.
func (s *Service) Collector() *Collector {
	return s.collector
}

// Start acquires the status flag and runs task in the background. ctx bounds
// the task, so it should outlive the request that triggered it.
func (s *Service) Start(ctx context.Context, task Task) error {
	if !s.collector.Configured() {
		return search.ErrNotConfigured
	}
	release, err := s.acquire(ctx, task)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(ctx, task, release)
	}()
	return nil
}

// Run acquires the status flag and runs task in the foreground.
func (s *Service) Run(ctx context.Context, task Task) (Report, error) {
	if !s.collector.Configured() {
		return Report{}, search.ErrNotConfigured
	}
	release, err := s.acquire(ctx, task)
	if err != nil {
		return Report{}, err
	}
	return s.execute(ctx, task, release)
}

// Wait blocks until background tasks have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

type releaseFunc func(ctx context.Context, message string)

func (s *Service) acquire(ctx context.Context, task Task) (releaseFunc, error) {
	at := s.now().UTC().Truncate(time.Second)

	if s.locker == nil {
		ok, err := s.store.TryAcquireStatus(ctx, string(task), at)
		if err != nil {
			return nil, fmt.Errorf("acquire status: %w", err)
		}
		if !ok {
			return nil, ErrBusy
		}
		return s.releaseStatus, nil
	}

	token, ok, err := s.locker.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	if err := s.store.ForceStatusRunning(ctx, string(task), at); err != nil {
		if rerr := s.locker.Release(ctx, token); rerr != nil {
			s.log.Error("release lock", "error", rerr)
		}
		return nil, fmt.Errorf("set status: %w", err)
	}
	return func(ctx context.Context, message string) {
		s.releaseStatus(ctx, message)
		if err := s.locker.Release(ctx, token); err != nil {
			s.log.Error("release lock", "error", err)
		}
	}, nil
}

func (s *Service) releaseStatus(ctx context.Context, message string) {
	if err := s.store.ReleaseStatus(ctx, message, s.now().UTC().Truncate(time.Second)); err != nil {
		s.log.Error("release status", "error", err)
	}
}

func (s *Service) execute(ctx context.Context, task Task, release releaseFunc) (Report, error) {
	start := s.now().UTC().Truncate(time.Second)
	s.log.Info("task started", "task", task)

	report, err := s.dispatch(ctx, task)

	status := "completed"
	message := fmt.Sprintf("%s finished: %s", task, report.Summary())
	if err != nil {
		status = "failed"
		message = fmt.Sprintf("%s failed: %v (%s)", task, err, report.Summary())
		s.log.Error("task failed", "task", task, "error", err)
	} else {
		s.log.Info("task finished", "task", task, "runs", report.Runs, "requests", report.Requests, "saved", report.Saved)
	}

	// Bookkeeping must survive a cancelled task context.
	bg := context.WithoutCancel(ctx)
	release(bg, message)

	entry := &model.SystemLog{
		Task:           string(task),
		StartTime:      start,
		EndTime:        s.now().UTC().Truncate(time.Second),
		ProcessedCount: report.Saved,
		Status:         status,
	}
	if lerr := s.store.CreateSystemLog(bg, entry); lerr != nil {
		s.log.Error("write system log", "task", task, "error", lerr)
	}
	if s.notifier != nil {
		if nerr := s.notifier.Notify(bg, message); nerr != nil {
			s.log.Warn("notify", "task", task, "error", nerr)
		}
	}
	return report, err
}

func (s *Service) dispatch(ctx context.Context, task Task) (Report, error) {
	switch task {
	case TaskRelevant:
		return s.collector.Relevant(ctx)
	case TaskHistorical:
		return s.collector.Historical(ctx)
	case TaskContinuous:
		return s.collector.Continuous(ctx)
	case TaskFull:
		report, err := s.collector.Relevant(ctx)
		if err != nil {
			return report, err
		}
		hist, err := s.collector.Historical(ctx)
		report.add(hist)
		return report, err
	}
	return Report{}, fmt.Errorf("unknown task %q", task)
}

// Recover clears a running flag left behind by a process that stopped
// mid-task. It is a no-op when a cross-process lock is in use, since another
// process may legitimately hold the flag.
func (s *Service) Recover(ctx context.Context) error {
	if s.locker != nil {
		return nil
	}
	st, err := s.store.GetSystemStatus(ctx)
	if err != nil {
		return fmt.Errorf("read system status: %w", err)
	}
	if !st.IsMonitoringRunning {
		return nil
	}
	s.log.Warn("clearing stale running flag", "task", st.CurrentTask)
	return s.store.ReleaseStatus(ctx, fmt.Sprintf("%s interrupted by restart", st.CurrentTask), s.now().UTC().Truncate(time.Second))
}

// Status returns the system status record.
func (s *Service) Status(ctx context.Context) (*model.SystemStatus, error) {
	return s.store.GetSystemStatus(ctx)
}

// HistoricalStatus reports the progress of the historical backfill.
func (s *Service) HistoricalStatus(ctx context.Context) (model.HistoricalStatus, error) {
	return s.collector.HistoricalStatus(ctx)
}

// UpdateHistoricalStartDate sets a new backfill boundary and drops the
// interruption marker. A boundary without runs starts a fresh lineage from
// yesterday; one already used resumes below its oldest collected day.
func (s *Service) UpdateHistoricalStartDate(ctx context.Context, day time.Time) error {
	yesterday := s.collector.quota.Today().AddDate(0, 0, -1)
	if day.After(yesterday) {
		return ErrInvalidStartDate
	}
	if err := s.store.SetHistoricalStartDate(ctx, day); err != nil {
		return err
	}
	if err := s.store.ClearInterruptions(ctx); err != nil {
		return fmt.Errorf("clear interruptions: %w", err)
	}
	s.log.Info("historical start date updated", "start_date", day.Format(model.DateLayout))
	return nil
}

// Purge deletes every run, result, request log and quota record.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeMonitorData(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge monitor data: %w", err)
	}
	s.log.Warn("monitor data purged", "deleted", n)
	return n, nil
}
