package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Run is one harness invocation.
type Run struct {
	ID         string
	Seq        int64
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Passed     int
	Failed     int
	Skipped    int
	Errors     int
}

// SuiteRecord is the stored outcome of one specification in a run.
type SuiteRecord struct {
	Suite      string
	Outcome    string
	Passed     int
	Failed     int
	Skipped    int
	SkipReason string
	Error      string
	Failures   []FailureRecord
}

// FailureRecord is one mismatching expected block.
type FailureRecord struct {
	CaseID    string
	CaseIndex int
	Line      int
	Statement string
	Level     string
	Expected  string
	Actual    string
	Message   string
}

// BeginRun allocates a new run with a UUIDv7 id and the next logical seq.
func (s *Store) BeginRun(ctx context.Context) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := Run{ID: id.String(), StartedAt: s.now().UTC()}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO runs (id, seq, started_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?)
		RETURNING seq
	`, run.ID, run.StartedAt.Format(time.RFC3339Nano)).Scan(&run.Seq)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// RecordSuite stores a suite outcome and its failures atomically.
func (s *Store) RecordSuite(ctx context.Context, runID string, rec SuiteRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record suite: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO suite_reports (run_id, suite, outcome, passed, failed, skipped, skip_reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, runID, rec.Suite, rec.Outcome, rec.Passed, rec.Failed, rec.Skipped, rec.SkipReason, rec.Error)
	if err != nil {
		return fmt.Errorf("record suite %s: %w", rec.Suite, err)
	}

	for i, f := range rec.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO failures
			(run_id, suite, seq, case_id, case_index, line, statement, level, expected, actual, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, rec.Suite, i+1, f.CaseID, f.CaseIndex, f.Line, f.Statement, f.Level, f.Expected, f.Actual, f.Message)
		if err != nil {
			return fmt.Errorf("record failure %d of %s: %w", i+1, rec.Suite, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("record suite %s: %w", rec.Suite, err)
	}
	return nil
}

// FinishRun stamps the run's end time and totals from its suite records.
// Passed, Failed and Skipped count cases; Errors counts suites that could not
// run at all.
func (s *Store) FinishRun(ctx context.Context, runID string) (Run, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			passed  = (SELECT COALESCE(SUM(passed), 0)  FROM suite_reports WHERE run_id = runs.id),
			failed  = (SELECT COALESCE(SUM(failed), 0)  FROM suite_reports WHERE run_id = runs.id),
			skipped = (SELECT COALESCE(SUM(skipped), 0) FROM suite_reports WHERE run_id = runs.id),
			errors  = (SELECT COUNT(*) FROM suite_reports WHERE run_id = runs.id AND outcome = 'error')
		WHERE id = ?
	`, s.now().UTC().Format(time.RFC3339Nano), runID)
	if err != nil {
		return Run{}, fmt.Errorf("finish run: %w", err)
	}
	return s.Run(ctx, runID)
}

const runColumns = `id, seq, started_at, finished_at, passed, failed, skipped, errors`

// Run returns a run by id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Suites returns the suite records of a run in suite name order, with failures.
func (s *Store) Suites(ctx context.Context, runID string) ([]SuiteRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT suite, outcome, passed, failed, skipped, skip_reason, error
		FROM suite_reports WHERE run_id = ?
		ORDER BY suite COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query suites: %w", err)
	}

	records := []SuiteRecord{}
	for rows.Next() {
		var r SuiteRecord
		if err := rows.Scan(&r.Suite, &r.Outcome, &r.Passed, &r.Failed, &r.Skipped, &r.SkipReason, &r.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan suite: %w", err)
		}
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suites: %w", err)
	}

	// Failures are read after rows is closed: the store has a single connection.
	failures, err := s.failures(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Failures = failures[records[i].Suite]
	}
	return records, nil
}

// Failures returns every failure recorded for a run, by suite name then
// recording order.
func (s *Store) Failures(ctx context.Context, runID string) ([]FailureRecord, error) {
	bySuite, err := s.failures(ctx, runID)
	if err != nil {
		return nil, err
	}
	suites := make([]string, 0, len(bySuite))
	for name := range bySuite {
		suites = append(suites, name)
	}
	sort.Strings(suites)

	out := []FailureRecord{}
	for _, name := range suites {
		out = append(out, bySuite[name]...)
	}
	return out, nil
}

func (s *Store) failures(ctx context.Context, runID string) (map[string][]FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT suite, case_id, case_index, line, statement, level, expected, actual, message
		FROM failures WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]FailureRecord)
	for rows.Next() {
		var (
			suite string
			f     FailureRecord
		)
		if err := rows.Scan(&suite, &f.CaseID, &f.CaseIndex, &f.Line, &f.Statement, &f.Level, &f.Expected, &f.Actual, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out[suite] = append(out[suite], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// CaseFailures counts the runs in which the case fingerprint failed.
func (s *Store) CaseFailures(ctx context.Context, caseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT run_id) FROM failures WHERE case_id = ?
	`, caseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count case failures: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Seq, &started, &finished, &run.Passed, &run.Failed, &run.Skipped, &run.Errors); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}
