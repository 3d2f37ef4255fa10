package monitor

import (
	"context"
	"fmt"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

const (
	summaryRuns = 50
	summaryLogs = 100
)

// RunData is a run with the results attributed to it.
type RunData struct {
	Run     model.Run      `json:"run_metadata"`
	Results []model.Result `json:"results"`
}

// Latest holds the newest relevant run of each group. A group without runs
// is nil.
type Latest struct {
	Brand       *RunData `json:"brand"`
	Competitors *RunData `json:"competitors"`
}

// Historical holds every historical run of each group, oldest day first.
type Historical struct {
	Brand       []RunData `json:"brand"`
	Competitors []RunData `json:"competitors"`
}

// Summary aggregates the run and request history.
type Summary struct {
	TotalRuns         int                       `json:"total_runs"`
	TotalRequests     int                       `json:"total_requests"`
	TotalResultsSaved int                       `json:"total_results_saved"`
	RunsByType        map[model.SearchType]int  `json:"runs_by_type"`
	ResultsByGroup    map[model.SearchGroup]int `json:"results_by_group"`
	LatestRuns        []model.Run               `json:"latest_runs"`
	LatestLogs        []model.RequestLog        `json:"latest_logs"`
}

// Summary counts runs by type and results by group and returns the latest
// runs and request logs.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	runs, err := s.store.ListRuns(ctx, storage.RunFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	requests, err := s.store.CountRequestLogs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	logs, err := s.store.ListRequestLogs(ctx, summaryLogs)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	sum := Summary{
		TotalRuns:     len(runs),
		TotalRequests: requests,
		RunsByType: map[model.SearchType]int{
			model.SearchRelevant:   0,
			model.SearchHistorical: 0,
			model.SearchContinuous: 0,
		},
		ResultsByGroup: map[model.SearchGroup]int{
			model.GroupBrand:       0,
			model.GroupCompetitors: 0,
		},
		LatestRuns: runs[:min(len(runs), summaryRuns)],
		LatestLogs: logs,
	}
	for _, r := range runs {
		sum.TotalResultsSaved += r.TotalResultsFound
		sum.RunsByType[r.SearchType]++
		sum.ResultsByGroup[r.SearchGroup] += r.TotalResultsFound
	}
	if sum.LatestRuns == nil {
		sum.LatestRuns = []model.Run{}
	}
	if sum.LatestLogs == nil {
		sum.LatestLogs = []model.RequestLog{}
	}
	return sum, nil
}

// Latest returns the newest relevant run of each group with its results.
func (s *Service) Latest(ctx context.Context) (Latest, error) {
	var out Latest
	for _, g := range model.Groups {
		runs, err := s.store.ListRuns(ctx, storage.RunFilter{Group: g, Type: model.SearchRelevant, Limit: 1})
		if err != nil {
			return Latest{}, fmt.Errorf("latest %s: %w", g, err)
		}
		if len(runs) == 0 {
			continue
		}
		results, err := s.store.ListResultsByRun(ctx, runs[0].ID)
		if err != nil {
			return Latest{}, fmt.Errorf("latest %s results: %w", g, err)
		}
		data := &RunData{Run: runs[0], Results: nonNilResults(results)}
		if g == model.GroupBrand {
			out.Brand = data
		} else {
			out.Competitors = data
		}
	}
	return out, nil
}

// Historical returns every historical run with its results, grouped.
func (s *Service) Historical(ctx context.Context) (Historical, error) {
	out := Historical{Brand: []RunData{}, Competitors: []RunData{}}
	runs, err := s.store.ListRuns(ctx, storage.RunFilter{Type: model.SearchHistorical})
	if err != nil {
		return Historical{}, fmt.Errorf("historical runs: %w", err)
	}
	if len(runs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	results, err := s.store.ListResultsByRun(ctx, ids...)
	if err != nil {
		return Historical{}, fmt.Errorf("historical results: %w", err)
	}
	byRun := make(map[string][]model.Result)
	for _, r := range results {
		byRun[r.RunID] = append(byRun[r.RunID], r)
	}

	for _, r := range runs {
		data := RunData{Run: r, Results: nonNilResults(byRun[r.ID])}
		switch r.SearchGroup {
		case model.GroupBrand:
			out.Brand = append(out.Brand, data)
		case model.GroupCompetitors:
			out.Competitors = append(out.Competitors, data)
		}
	}
	return out, nil
}

func nonNilResults(r []model.Result) []model.Result {
	if r == nil {
		return []model.Result{}
	}
	return r
}

// RequestLogs returns the most recent request logs, newest first.
func (s *Service) RequestLogs(ctx context.Context, limit int) ([]model.RequestLog, error) {
	logs, err := s.store.ListRequestLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("request logs: %w", err)
	}
	if logs == nil {
		logs = []model.RequestLog{}
	}
	return logs, nil
}

// SystemLogs returns the most recent background task entries.
func (s *Service) SystemLogs(ctx context.Context, limit int) ([]model.SystemLog, error) {
	logs, err := s.store.ListSystemLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("system logs: %w", err)
	}
	if logs == nil {
		logs = []model.SystemLog{}
	}
	return logs, nil
}

// SaveAnalysis records the NLP pipeline's verdict on a result.
func (s *Service) SaveAnalysis(ctx context.Context, id string, a model.ResultAnalysis) error {
	if err := s.store.UpdateResultAnalysis(ctx, id, a); err != nil {
		return fmt.Errorf("save analysis %s: %w", id, err)
	}
	return nil
}
