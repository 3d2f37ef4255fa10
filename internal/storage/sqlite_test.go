package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

var (
	ignoreRunTS    = cmpopts.IgnoreFields(model.Run{}, "CollectedAt")
	ignoreResultTS = cmpopts.IgnoreFields(model.Result{}, "CollectedAt")
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %q: %v", s, err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	run := model.Run{
		SearchTermsQuery: `("acme")`,
		SearchGroup:      model.GroupBrand,
		SearchType:       model.SearchRelevant,
	}
	if err := s.CreateRun(ctx, &run); err != nil {
		t.Fatalf("create: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected generated ID")
	}
	if run.Status != model.RunInProgress {
		t.Errorf("status = %q, want %q", run.Status, model.RunInProgress)
	}

	if err := s.FinishRun(ctx, run.ID, model.RunCompleted, 17, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := run
	want.Status = model.RunCompleted
	want.TotalResultsFound = 17
	if diff := cmp.Diff(want, *got, ignoreRunTS); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun(ctx, "missing", model.RunFailed, 0, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) err = %v, want ErrNotFound", err)
	}
}

func TestListRunsOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, d := range []string{"2024-04-28", "2024-04-30", "2024-04-29"} {
		r := model.Run{
			SearchGroup: model.GroupBrand,
			SearchType:  model.SearchHistorical,
			CollectedAt: base.Add(time.Duration(i) * time.Minute),
			RangeStart:  ptr(day(t, d)),
			RangeEnd:    ptr(day(t, d)),
		}
		if err := s.CreateRun(ctx, &r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	for i := range 2 {
		r := model.Run{
			SearchGroup: model.GroupCompetitors,
			SearchType:  model.SearchRelevant,
			CollectedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.CreateRun(ctx, &r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	hist, err := s.ListRuns(ctx, RunFilter{Type: model.SearchHistorical})
	if err != nil {
		t.Fatalf("list historical: %v", err)
	}
	var days []string
	for _, r := range hist {
		days = append(days, r.RangeStart.Format(model.DateLayout))
	}
	if diff := cmp.Diff([]string{"2024-04-28", "2024-04-29", "2024-04-30"}, days); diff != "" {
		t.Errorf("historical order mismatch (-want +got):\n%s", diff)
	}

	rel, err := s.ListRuns(ctx, RunFilter{Group: model.GroupCompetitors, Limit: 1})
	if err != nil {
		t.Fatalf("list relevant: %v", err)
	}
	if len(rel) != 1 || !rel[0].CollectedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("latest competitors run = %+v, want the one collected at %v", rel, base.Add(time.Hour))
	}
}

func TestMarkRunInterruptedKeepsSingleMarker(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	lineage := day(t, "2024-01-01")

	var ids []string
	for range 3 {
		r := model.Run{
			SearchGroup:            model.GroupBrand,
			SearchType:             model.SearchHistorical,
			HistoricalRunStartDate: &lineage,
		}
		if err := s.CreateRun(ctx, &r); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, r.ID)
	}

	if err := s.MarkRunInterrupted(ctx, ids[0], day(t, "2024-03-10")); err != nil {
		t.Fatalf("mark first: %v", err)
	}
	if err := s.MarkRunInterrupted(ctx, ids[2], day(t, "2024-03-05")); err != nil {
		t.Fatalf("mark last: %v", err)
	}

	runs, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	marked := 0
	for _, r := range runs {
		if r.LastInterruptionDate != nil {
			marked++
		}
	}
	if marked != 1 {
		t.Errorf("marked runs = %d, want 1", marked)
	}

	got, err := s.InterruptedRun(ctx, lineage)
	if err != nil {
		t.Fatalf("interrupted run: %v", err)
	}
	if got.ID != ids[2] || !got.LastInterruptionDate.Equal(day(t, "2024-03-05")) {
		t.Errorf("interrupted run = %s at %v, want %s at 2024-03-05", got.ID, got.LastInterruptionDate, ids[2])
	}

	lineageRuns, err := s.LineageRuns(ctx, lineage)
	if err != nil {
		t.Fatalf("lineage runs: %v", err)
	}
	if len(lineageRuns) != 3 {
		t.Errorf("lineage runs = %d, want 3", len(lineageRuns))
	}

	if err := s.ClearInterruptions(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.InterruptedRun(ctx, lineage); !errors.Is(err, ErrNotFound) {
		t.Errorf("InterruptedRun after clear err = %v, want ErrNotFound", err)
	}
}

func TestUpsertResultsKeepsPipelineFields(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	published := time.Date(2024, 2, 3, 12, 0, 0, 0, time.UTC)

	first := model.Result{
		Link:        "https://example.com/a",
		Title:       "old title",
		RunID:       "run-1",
		SearchGroup: model.GroupBrand,
		Origin:      model.OriginGoogleCSE,
		Pagemap:     json.RawMessage(`{"metatags":[]}`),
	}
	if n, err := s.UpsertResults(ctx, []model.Result{first}); err != nil || n != 1 {
		t.Fatalf("upsert first = %d, %v", n, err)
	}

	analysis := model.ResultAnalysis{
		Status:         model.ResultNLPOK,
		PublishDate:    &published,
		Sentiment:      "positive",
		SentimentScore: ptr(0.8),
		Entities:       []string{"Acme"},
	}
	if err := s.UpdateResultAnalysis(ctx, model.ResultID(first.Link), analysis); err != nil {
		t.Fatalf("update analysis: %v", err)
	}

	second := first
	second.Title = "new title"
	second.RunID = "run-2"
	if _, err := s.UpsertResults(ctx, []model.Result{second}); err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	got, err := s.ListResultsByRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []model.Result{{
		ID:             model.ResultID(first.Link),
		Link:           first.Link,
		Title:          "new title",
		Pagemap:        first.Pagemap,
		RunID:          "run-2",
		SearchGroup:    model.GroupBrand,
		Status:         model.ResultNLPOK,
		Origin:         model.OriginGoogleCSE,
		PublishDate:    &published,
		Sentiment:      "positive",
		SentimentScore: ptr(0.8),
		Entities:       []string{"Acme"},
	}}
	if diff := cmp.Diff(want, got, ignoreResultTS); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	old, err := s.ListResultsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("list old: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("run-1 still owns %d results", len(old))
	}

	analyzed, err := s.ListAnalyzedResults(ctx, model.GroupBrand, published.Add(-time.Hour), published.Add(time.Hour))
	if err != nil {
		t.Fatalf("list analyzed: %v", err)
	}
	if len(analyzed) != 1 {
		t.Errorf("analyzed results = %d, want 1", len(analyzed))
	}
}

func TestInsertNewResultsSkipsKnownLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	seed := []model.Result{{Link: "https://example.com/known", RunID: "r1", SearchGroup: model.GroupBrand}}
	if _, err := s.UpsertResults(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	batch := []model.Result{
		{Link: "https://example.com/known", Title: "changed", RunID: "r2", SearchGroup: model.GroupBrand},
		{Link: "https://example.com/fresh", RunID: "r2", SearchGroup: model.GroupBrand},
	}
	n, err := s.InsertNewResults(ctx, batch)
	if err != nil {
		t.Fatalf("insert new: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}

	got, err := s.ListResultsByRun(ctx, "r1", "r2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	owners := map[string]string{}
	for _, r := range got {
		owners[r.Link] = r.RunID
		if r.Status != model.ResultPending {
			t.Errorf("%s status = %q, want pending", r.Link, r.Status)
		}
	}
	want := map[string]string{"https://example.com/known": "r1", "https://example.com/fresh": "r2"}
	if diff := cmp.Diff(want, owners); diff != "" {
		t.Errorf("owners mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := range 3 {
		l := model.RequestLog{
			RunID:        "run",
			SearchGroup:  model.GroupBrand,
			SearchType:   model.SearchContinuous,
			Page:         i,
			ResultsCount: 10,
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		}
		if err := s.CreateRequestLog(ctx, &l); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}

	logs, err := s.ListRequestLogs(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var pages []int
	for _, l := range logs {
		pages = append(pages, l.Page)
	}
	if diff := cmp.Diff([]int{2, 1}, pages); diff != "" {
		t.Errorf("pages mismatch (-want +got):\n%s", diff)
	}

	n, err := s.CountRequestLogs(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestQuotaCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		incs []int
		want int
	}{
		{name: "no record", want: 0},
		{name: "single increment", incs: []int{1}, want: 1},
		{name: "accumulates", incs: []int{1, 1, 3}, want: 5},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date := time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
			for _, n := range tt.incs {
				if err := s.IncrementQuota(ctx, date, n); err != nil {
					t.Fatalf("increment: %v", err)
				}
			}
			got, err := s.QuotaCount(ctx, date)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tt.want {
				t.Errorf("QuotaCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSystemStatusLock(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	ok, err := s.TryAcquireStatus(ctx, "full", at)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, err = s.TryAcquireStatus(ctx, "continuous", at)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Error("second acquire succeeded while running")
	}

	st, err := s.GetSystemStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.IsMonitoringRunning || st.CurrentTask != "full" {
		t.Errorf("status = %+v, want running full", st)
	}

	done := at.Add(time.Hour)
	if err := s.ReleaseStatus(ctx, "finished", done); err != nil {
		t.Fatalf("release: %v", err)
	}
	st, err = s.GetSystemStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want := model.SystemStatus{
		TaskStartTime:      &at,
		LastCompletionTime: &done,
		Message:            "finished",
	}
	if diff := cmp.Diff(want, *st); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}

	if ok, err := s.TryAcquireStatus(ctx, "historical", done); err != nil || !ok {
		t.Errorf("acquire after release = %v, %v", ok, err)
	}
}

func TestSystemLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	l := model.SystemLog{Task: "continuous", StartTime: start, EndTime: start.Add(time.Minute), ProcessedCount: 4, Status: "completed"}
	if err := s.CreateSystemLog(ctx, &l); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.ListSystemLogs(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]model.SystemLog{l}, got); diff != "" {
		t.Errorf("logs mismatch (-want +got):\n%s", diff)
	}

	second := model.SystemLog{Task: "relevant", StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour), Status: "completed"}
	if err := s.CreateSystemLog(ctx, &second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	for _, tt := range []struct {
		limit int
		want  []model.SystemLog
	}{
		{limit: 0, want: []model.SystemLog{second, l}},
		{limit: -1, want: []model.SystemLog{second, l}},
		{limit: 1, want: []model.SystemLog{second}},
	} {
		got, err := s.ListSystemLogs(ctx, tt.limit)
		if err != nil {
			t.Fatalf("list limit %d: %v", tt.limit, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("limit %d mismatch (-want +got):\n%s", tt.limit, diff)
		}
	}
}

func TestPurgeMonitorData(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	n, err := s.PurgeMonitorData(ctx)
	if err != nil {
		t.Fatalf("purge empty: %v", err)
	}
	if n != 0 {
		t.Errorf("purge empty = %d, want 0", n)
	}

	run := model.Run{SearchGroup: model.GroupBrand, SearchType: model.SearchRelevant}
	if err := s.CreateRun(ctx, &run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := s.UpsertResults(ctx, []model.Result{{Link: "https://example.com", RunID: run.ID, SearchGroup: model.GroupBrand}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.IncrementQuota(ctx, "2024-01-01", 2); err != nil {
		t.Fatalf("quota: %v", err)
	}

	n, err = s.PurgeMonitorData(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
}

func TestPlatformConfig(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	empty, err := s.GetSearchTerms(ctx)
	if err != nil {
		t.Fatalf("get empty terms: %v", err)
	}
	if diff := cmp.Diff(model.SearchTerms{}, empty); diff != "" {
		t.Errorf("empty terms mismatch (-want +got):\n%s", diff)
	}

	terms := model.SearchTerms{
		Brand:       model.TermGroup{MainTerms: []string{"Acme"}, Synonyms: []string{"Acme Corp"}, ExcludedTerms: []string{"cartoon"}},
		Competitors: model.TermGroup{MainTerms: []string{"Globex"}},
	}
	if err := s.SaveSearchTerms(ctx, terms); err != nil {
		t.Fatalf("save terms: %v", err)
	}
	got, err := s.GetSearchTerms(ctx)
	if err != nil {
		t.Fatalf("get terms: %v", err)
	}
	if diff := cmp.Diff(terms, got); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}

	start, err := s.GetHistoricalStartDate(ctx)
	if err != nil || start != nil {
		t.Fatalf("unset start date = %v, %v", start, err)
	}
	if err := s.SetHistoricalStartDate(ctx, day(t, "2023-12-01")); err != nil {
		t.Fatalf("set start date: %v", err)
	}
	start, err = s.GetHistoricalStartDate(ctx)
	if err != nil {
		t.Fatalf("get start date: %v", err)
	}
	if !start.Equal(day(t, "2023-12-01")) {
		t.Errorf("start date = %v, want 2023-12-01", start)
	}
}

func TestTrendTerms(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	term := model.TrendTerm{Term: "acme", IsActive: true}
	if err := s.CreateTrendTerm(ctx, &term); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := model.TrendTerm{Term: "acme", IsActive: true}
	if err := s.CreateTrendTerm(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate create err = %v, want ErrConflict", err)
	}
	inactive := model.TrendTerm{Term: "globex"}
	if err := s.CreateTrendTerm(ctx, &inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}

	active, err := s.ListTrendTerms(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if diff := cmp.Diff([]model.TrendTerm{term}, active); diff != "" {
		t.Errorf("active terms mismatch (-want +got):\n%s", diff)
	}

	if err := s.SetTrendTermActive(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("toggle missing err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTrendTerm(ctx, term.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetTrendTerm(ctx, term.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted err = %v, want ErrNotFound", err)
	}
}

func TestTrendPointsAndTrendingSearches(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	points := []model.TrendPoint{
		{Term: "acme", Date: "2024-01-01", Value: 10},
		{Term: "acme", Date: "2024-01-02", Value: 20},
		{Term: "acme", Date: "2024-01-05", Value: 30},
	}
	if err := s.SaveTrendPoints(ctx, points); err != nil {
		t.Fatalf("save points: %v", err)
	}
	if err := s.SaveTrendPoints(ctx, []model.TrendPoint{{Term: "acme", Date: "2024-01-02", Value: 25}}); err != nil {
		t.Fatalf("overwrite point: %v", err)
	}
	got, err := s.ListTrendPoints(ctx, "acme", day(t, "2024-01-01"), day(t, "2024-01-03"))
	if err != nil {
		t.Fatalf("list points: %v", err)
	}
	want := []model.TrendPoint{
		{Term: "acme", Date: "2024-01-01", Value: 10},
		{Term: "acme", Date: "2024-01-02", Value: 25},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}

	ts := model.TrendingSearch{ID: "guid-1", Title: "Acme launch", MatchedTerms: []string{"acme"}}
	isNew, err := s.SaveTrendingSearch(ctx, &ts)
	if err != nil || !isNew {
		t.Fatalf("first save = %v, %v", isNew, err)
	}
	isNew, err = s.SaveTrendingSearch(ctx, &ts)
	if err != nil || isNew {
		t.Errorf("second save = %v, %v, want not new", isNew, err)
	}
	other := model.TrendingSearch{ID: "guid-2", Title: "Weather"}
	if _, err := s.SaveTrendingSearch(ctx, &other); err != nil {
		t.Fatalf("save other: %v", err)
	}
	matched, err := s.ListTrendingSearches(ctx, true, 10)
	if err != nil {
		t.Fatalf("list matched: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "guid-1" {
		t.Errorf("matched = %+v, want only guid-1", matched)
	}
}

func TestInstagramTargets(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	p := model.MonitoredProfile{Username: "acme", Type: model.ProfileCompetitor, IsActive: true}
	if err := s.CreateProfile(ctx, &p); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if err := s.CreateProfile(ctx, &model.MonitoredProfile{Username: "acme", Type: model.ProfileMedia}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate profile err = %v, want ErrConflict", err)
	}
	if err := s.SetProfileActive(ctx, "acme", false); err != nil {
		t.Fatalf("toggle profile: %v", err)
	}
	got, err := s.GetProfile(ctx, "acme")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	want := model.MonitoredProfile{ID: "acme", Username: "acme", Type: model.ProfileCompetitor}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
	if err := s.DeleteProfile(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing profile err = %v, want ErrNotFound", err)
	}

	h := model.MonitoredHashtag{Hashtag: "acmeday", IsActive: true}
	if err := s.CreateHashtag(ctx, &h); err != nil {
		t.Fatalf("create hashtag: %v", err)
	}
	if err := s.CreateHashtag(ctx, &model.MonitoredHashtag{Hashtag: "acmeday"}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate hashtag err = %v, want ErrConflict", err)
	}
	tags, err := s.ListHashtags(ctx)
	if err != nil {
		t.Fatalf("list hashtags: %v", err)
	}
	if diff := cmp.Diff([]model.MonitoredHashtag{h}, tags); diff != "" {
		t.Errorf("hashtags mismatch (-want +got):\n%s", diff)
	}
}

func TestServiceAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	a := model.ServiceAccount{Username: "scraper1", Status: model.AccountActive, SecretPath: "instagram-session-scraper1/1"}
	if err := s.CreateServiceAccount(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := model.ServiceAccount{Username: "scraper1", Status: model.AccountActive}
	if err := s.CreateServiceAccount(ctx, &dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}

	if err := s.UpdateServiceAccountSession(ctx, a.ID, "instagram-session-scraper1/2", model.AccountActive); err != nil {
		t.Fatalf("update session: %v", err)
	}
	got, err := s.GetServiceAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := a
	want.SecretPath = "instagram-session-scraper1/2"
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("account mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteServiceAccount(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteServiceAccount(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestInstagramContentQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	posts := []model.InstagramPost{
		{ID: "p1", OwnerUsername: "acme", LikesCount: 10, CommentsCount: 5, PostDate: now.Add(-2 * time.Hour), MonitoredHashtags: []string{"#acmeday"}},
		{ID: "p2", OwnerUsername: "acme", LikesCount: 50, CommentsCount: 1, PostDate: now.Add(-time.Hour)},
		{ID: "p3", OwnerUsername: "globex", LikesCount: 30, CommentsCount: 9, PostDate: now.Add(-48 * time.Hour), MonitoredHashtags: []string{"acmeday"}},
	}
	if err := s.UpsertPosts(ctx, posts); err != nil {
		t.Fatalf("upsert posts: %v", err)
	}

	tests := []struct {
		name string
		q    PostQuery
		want []string
	}{
		{name: "by owner newest first", q: PostQuery{Owner: "acme", Desc: true}, want: []string{"p2", "p1"}},
		{name: "by hashtag", q: PostQuery{Hashtag: "#acmeday"}, want: []string{"p3", "p1"}},
		{name: "ranked by likes", q: PostQuery{OrderBy: "likes_count", Desc: true, Limit: 2}, want: []string{"p2", "p3"}},
		{name: "time window", q: PostQuery{From: now.Add(-24 * time.Hour), To: now}, want: []string{"p1", "p2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListPosts(ctx, tt.q)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.ListPosts(ctx, PostQuery{OrderBy: "caption; DROP TABLE"}); err == nil {
		t.Error("expected error for unsupported order column")
	}

	comments := []model.InstagramComment{
		{ID: "c1", PostID: "p1", OwnerUsername: "fan", Text: "great", CommentDate: now.Add(-90 * time.Minute), SentimentScore: ptr(0.9)},
		{ID: "c2", PostID: "p3", OwnerUsername: "critic", OwnerFollowers: ptr(120), Text: "bad", CommentDate: now, SentimentScore: ptr(-0.7)},
	}
	if err := s.UpsertComments(ctx, comments); err != nil {
		t.Fatalf("upsert comments: %v", err)
	}
	gotComments, err := s.ListComments(ctx, CommentQuery{PostIDs: []string{"p3"}})
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if diff := cmp.Diff([]model.InstagramComment{comments[1]}, gotComments, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}

	stories := []model.InstagramStory{
		{ID: "s1", OwnerUsername: "acme", Typename: "GraphStoryImage", StoryDate: now.Add(-time.Hour)},
		{ID: "s2", OwnerUsername: "acme", Typename: "GraphStoryVideo", StoryDate: now.Add(-30 * time.Hour)},
	}
	if err := s.UpsertStories(ctx, stories); err != nil {
		t.Fatalf("upsert stories: %v", err)
	}
	recent, err := s.ListStories(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("list stories: %v", err)
	}
	if diff := cmp.Diff(stories[:1], recent); diff != "" {
		t.Errorf("stories mismatch (-want +got):\n%s", diff)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	u := model.User{Email: " Admin@Example.com ", Role: model.RoleAdmin}
	if err := s.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "admin@example.com" {
		t.Errorf("email = %q, want normalized", u.Email)
	}
	if err := s.CreateUser(ctx, &model.User{Email: "admin@example.com", Role: model.RoleOperator}); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate err = %v, want ErrConflict", err)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(u, *got); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteUserByEmail(ctx, "ADMIN@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users = %d, want 0", len(users))
	}
}
