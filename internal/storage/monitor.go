package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

const runColumns = `id, search_terms_query, search_group, search_type, total_results_found, collected_at,
	status, range_start, range_end, last_interruption_date, historical_run_start_date, message`

// CreateRun inserts a run, assigning an ID and collection time when missing.
func (s *SQLite) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CollectedAt.IsZero() {
		run.CollectedAt = time.Now().UTC().Truncate(time.Second)
	}
	if run.Status == "" {
		run.Status = model.RunInProgress
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SearchTermsQuery, string(run.SearchGroup), string(run.SearchType), run.TotalResultsFound,
		formatTime(run.CollectedAt), string(run.Status), nullDay(run.RangeStart), nullDay(run.RangeEnd),
		nullDay(run.LastInterruptionDate), nullDay(run.HistoricalRunStartDate), run.Message,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun returns a single run by its ID.
func (s *SQLite) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM monitor_runs WHERE id = ?`, id)
	return scanRun(row)
}

// FinishRun moves a run to a terminal status.
func (s *SQLite) FinishRun(ctx context.Context, id string, status model.RunStatus, total int, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitor_runs SET status = ?, total_results_found = ?, message = ? WHERE id = ?`,
		string(status), total, message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return rowsAffected(res, "finish run")
}

// MarkRunInterrupted sets the interruption marker on a run and clears it
// everywhere else, so at most one run carries it.
func (s *SQLite) MarkRunInterrupted(ctx context.Context, id string, day time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE monitor_runs SET last_interruption_date = NULL WHERE last_interruption_date IS NOT NULL`,
	); err != nil {
		return fmt.Errorf("clear interruptions: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE monitor_runs SET last_interruption_date = ? WHERE id = ?`, formatDay(day), id,
	)
	if err != nil {
		return fmt.Errorf("mark interrupted: %w", err)
	}
	if err := rowsAffected(res, "mark interrupted"); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearInterruptions removes every interruption marker.
func (s *SQLite) ClearInterruptions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE monitor_runs SET last_interruption_date = NULL WHERE last_interruption_date IS NOT NULL`,
	)
	if err != nil {
		return fmt.Errorf("clear interruptions: %w", err)
	}
	return nil
}

// InterruptedRun returns the run of a historical lineage that carries the
// interruption marker.
func (s *SQLite) InterruptedRun(ctx context.Context, lineage time.Time) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM monitor_runs
		 WHERE historical_run_start_date = ? AND last_interruption_date IS NOT NULL
		 ORDER BY collected_at DESC LIMIT 1`,
		formatDay(lineage),
	)
	return scanRun(row)
}

// LineageRuns returns the runs of a historical lineage, newest day first.
func (s *SQLite) LineageRuns(ctx context.Context, lineage time.Time) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM monitor_runs
		 WHERE search_type = ? AND historical_run_start_date = ?
		 ORDER BY range_start DESC, collected_at ASC`,
		string(model.SearchHistorical), formatDay(lineage),
	)
	if err != nil {
		return nil, fmt.Errorf("query lineage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListRuns returns runs matching f. Historical listings are ordered by day,
// everything else by collection time, newest first.
func (s *SQLite) ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Group != "" {
		where = append(where, "search_group = ?")
		args = append(args, string(f.Group))
	}
	if f.Type != "" {
		where = append(where, "search_type = ?")
		args = append(args, string(f.Type))
	}
	q := `SELECT ` + runColumns + ` FROM monitor_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Type == model.SearchHistorical {
		q += " ORDER BY range_start ASC, collected_at ASC"
	} else {
		q += " ORDER BY collected_at DESC, rowid DESC"
	}
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

const resultColumns = `id, link, display_link, title, snippet, html_snippet, pagemap, run_id, search_group,
	status, origin, publish_date, sentiment, sentiment_score, entities, collected_at`

// UpsertResults writes results, overwriting the search content and run
// reference of results that already exist. Pipeline fields of existing
// results are kept.
func (s *SQLite) UpsertResults(ctx context.Context, results []model.Result) (int, error) {
	return s.writeResults(ctx, results,
		`ON CONFLICT(id) DO UPDATE SET
			link = excluded.link, display_link = excluded.display_link, title = excluded.title,
			snippet = excluded.snippet, html_snippet = excluded.html_snippet, pagemap = excluded.pagemap,
			run_id = excluded.run_id, search_group = excluded.search_group, collected_at = excluded.collected_at`)
}

// InsertNewResults writes only results whose ID is not stored yet and
// returns how many were inserted.
func (s *SQLite) InsertNewResults(ctx context.Context, results []model.Result) (int, error) {
	return s.writeResults(ctx, results, `ON CONFLICT(id) DO NOTHING`)
}

func (s *SQLite) writeResults(ctx context.Context, results []model.Result, conflict string) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monitor_results (`+resultColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `+conflict)
	if err != nil {
		return 0, fmt.Errorf("prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	written := 0
	for _, r := range results {
		if r.ID == "" {
			r.ID = model.ResultID(r.Link)
		}
		if r.Status == "" {
			r.Status = model.ResultPending
		}
		if r.CollectedAt.IsZero() {
			r.CollectedAt = time.Now().UTC()
		}
		var pagemap any
		if len(r.Pagemap) > 0 {
			pagemap = string(r.Pagemap)
		}
		res, err := stmt.ExecContext(ctx,
			r.ID, r.Link, r.DisplayLink, r.Title, r.Snippet, r.HTMLSnippet, pagemap, r.RunID,
			string(r.SearchGroup), string(r.Status), r.Origin, nullTime(r.PublishDate), r.Sentiment,
			nullFloat(r.SentimentScore), encodeStrings(r.Entities), formatTime(r.CollectedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert result %s: %w", r.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("result rows affected: %w", err)
		}
		written += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit results: %w", err)
	}
	return written, nil
}

// ListResultsByRun returns the results currently attributed to the given runs.
func (s *SQLite) ListResultsByRun(ctx context.Context, runIDs ...string) ([]model.Result, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(runIDs))
	for i, id := range runIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM monitor_results WHERE run_id IN (`+placeholders(len(runIDs))+`)
		 ORDER BY collected_at, id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

// ListAnalyzedResults returns NLP-processed results of a group published in [from, to].
func (s *SQLite) ListAnalyzedResults(ctx context.Context, group model.SearchGroup, from, to time.Time) ([]model.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM monitor_results
		 WHERE search_group = ? AND status = ? AND publish_date >= ? AND publish_date <= ?
		 ORDER BY publish_date DESC, id`,
		string(group), string(model.ResultNLPOK), formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query analyzed results: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanResults(rows)
}

// UpdateResultAnalysis stores the NLP pipeline outcome for a result.
func (s *SQLite) UpdateResultAnalysis(ctx context.Context, id string, a model.ResultAnalysis) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitor_results SET status = ?, publish_date = ?, sentiment = ?, sentiment_score = ?, entities = ?
		 WHERE id = ?`,
		string(a.Status), nullTime(a.PublishDate), a.Sentiment, nullFloat(a.SentimentScore), encodeStrings(a.Entities), id,
	)
	if err != nil {
		return fmt.Errorf("update result analysis: %w", err)
	}
	return rowsAffected(res, "update result analysis")
}

// CreateRequestLog appends a request log entry.
func (s *SQLite) CreateRequestLog(ctx context.Context, l *model.RequestLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitor_logs (id, run_id, search_group, search_type, page, results_count, new_urls_saved,
			timestamp, range_start, range_end, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.RunID, string(l.SearchGroup), string(l.SearchType), l.Page, l.ResultsCount, l.NewURLsSaved,
		formatTime(l.Timestamp), nullDay(l.RangeStart), nullDay(l.RangeEnd), l.Error,
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// ListRequestLogs returns the most recent request logs, newest first.
// A non-positive limit returns every log.
func (s *SQLite) ListRequestLogs(ctx context.Context, limit int) ([]model.RequestLog, error) {
	q := `SELECT id, run_id, search_group, search_type, page, results_count, new_urls_saved, timestamp,
			range_start, range_end, error
		  FROM monitor_logs ORDER BY timestamp DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.RequestLog
	for rows.Next() {
		var (
			l              model.RequestLog
			group, typ, ts string
			start, end     sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.RunID, &group, &typ, &l.Page, &l.ResultsCount, &l.NewURLsSaved, &ts,
			&start, &end, &l.Error); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		l.SearchGroup = model.SearchGroup(group)
		l.SearchType = model.SearchType(typ)
		l.Timestamp = parseTime(ts)
		l.RangeStart = parseNullDay(start)
		l.RangeEnd = parseNullDay(end)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountRequestLogs returns the number of stored request logs.
func (s *SQLite) CountRequestLogs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM monitor_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count request logs: %w", err)
	}
	return n, nil
}

// QuotaCount returns the request count recorded for date, zero if none.
func (s *SQLite) QuotaCount(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM daily_quotas WHERE date = ?`, date).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return n, nil
}

// IncrementQuota atomically adds n to the counter of date, creating it if absent.
func (s *SQLite) IncrementQuota(ctx context.Context, date string, n int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_quotas (date, count) VALUES (?, ?)
		 ON CONFLICT(date) DO UPDATE SET count = count + excluded.count`,
		date, n,
	)
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return nil
}

// GetSystemStatus returns the singleton status record.
func (s *SQLite) GetSystemStatus(ctx context.Context) (*model.SystemStatus, error) {
	var (
		st           model.SystemStatus
		running      int
		start, compl sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_monitoring_running, current_task, task_start_time, last_completion_time, message
		 FROM system_status WHERE id = 1`,
	).Scan(&running, &st.CurrentTask, &start, &compl, &st.Message)
	if err != nil {
		return nil, fmt.Errorf("read system status: %w", err)
	}
	st.IsMonitoringRunning = running == 1
	st.TaskStartTime = parseNullTime(start)
	st.LastCompletionTime = parseNullTime(compl)
	return &st, nil
}

// TryAcquireStatus sets the running flag only if it is currently clear.
func (s *SQLite) TryAcquireStatus(ctx context.Context, task string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE system_status SET is_monitoring_running = 1, current_task = ?, task_start_time = ?, message = ?
		 WHERE id = 1 AND is_monitoring_running = 0`,
		task, formatTime(at), "running "+task,
	)
	if err != nil {
		return false, fmt.Errorf("acquire status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire status rows affected: %w", err)
	}
	return n == 1, nil
}

// ForceStatusRunning sets the running flag unconditionally.
func (s *SQLite) ForceStatusRunning(ctx context.Context, task string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE system_status SET is_monitoring_running = 1, current_task = ?, task_start_time = ?, message = ?
		 WHERE id = 1`,
		task, formatTime(at), "running "+task,
	)
	if err != nil {
		return fmt.Errorf("set status running: %w", err)
	}
	return nil
}

// ReleaseStatus clears the running flag and records the completion.
func (s *SQLite) ReleaseStatus(ctx context.Context, message string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE system_status SET is_monitoring_running = 0, current_task = '', last_completion_time = ?, message = ?
		 WHERE id = 1`,
		formatTime(at), message,
	)
	if err != nil {
		return fmt.Errorf("release status: %w", err)
	}
	return nil
}

// CreateSystemLog appends a task history entry.
func (s *SQLite) CreateSystemLog(ctx context.Context, l *model.SystemLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_logs (id, task, start_time, end_time, processed_count, status) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.Task, formatTime(l.StartTime), formatTime(l.EndTime), l.ProcessedCount, l.Status,
	)
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

// ListSystemLogs returns the most recent task history entries, newest first.
// A non-positive limit returns every entry.
func (s *SQLite) ListSystemLogs(ctx context.Context, limit int) ([]model.SystemLog, error) {
	q := `SELECT id, task, start_time, end_time, processed_count, status
		  FROM system_logs ORDER BY start_time DESC, rowid DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query system logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.SystemLog
	for rows.Next() {
		var (
			l          model.SystemLog
			start, end string
		)
		if err := rows.Scan(&l.ID, &l.Task, &start, &end, &l.ProcessedCount, &l.Status); err != nil {
			return nil, fmt.Errorf("scan system log: %w", err)
		}
		l.StartTime = parseTime(start)
		l.EndTime = parseTime(end)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// PurgeMonitorData deletes every run, result, request log and quota record
// and returns the number of deleted rows.
func (s *SQLite) PurgeMonitorData(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range []string{"monitor_runs", "monitor_results", "monitor_logs", "daily_quotas"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete %s rows affected: %w", table, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return total, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r                                model.Run
		group, typ, status, collected    string
		start, end, interrupted, lineage sql.NullString
	)
	err := row.Scan(&r.ID, &r.SearchTermsQuery, &group, &typ, &r.TotalResultsFound, &collected, &status,
		&start, &end, &interrupted, &lineage, &r.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.SearchGroup = model.SearchGroup(group)
	r.SearchType = model.SearchType(typ)
	r.Status = model.RunStatus(status)
	r.CollectedAt = parseTime(collected)
	r.RangeStart = parseNullDay(start)
	r.RangeEnd = parseNullDay(end)
	r.LastInterruptionDate = parseNullDay(interrupted)
	r.HistoricalRunStartDate = parseNullDay(lineage)
	return &r, nil
}

func scanResults(rows *sql.Rows) ([]model.Result, error) {
	var results []model.Result
	for rows.Next() {
		var (
			r                            model.Result
			group, status, ents, collect string
			pagemap, publish             sql.NullString
			score                        sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Link, &r.DisplayLink, &r.Title, &r.Snippet, &r.HTMLSnippet, &pagemap,
			&r.RunID, &group, &status, &r.Origin, &publish, &r.Sentiment, &score, &ents, &collect); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if pagemap.Valid {
			r.Pagemap = []byte(pagemap.String)
		}
		r.SearchGroup = model.SearchGroup(group)
		r.Status = model.ResultStatus(status)
		r.PublishDate = parseNullTime(publish)
		r.SentimentScore = parseNullFloat(score)
		r.Entities = decodeStrings(ents)
		r.CollectedAt = parseTime(collect)
		results = append(results, r)
	}
	return results, rows.Err()
}
