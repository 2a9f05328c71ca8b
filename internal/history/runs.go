package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/askgate/pkg/models"
)

// Kind is the command that produced a run.
type Kind string

const (
	KindProbe       Kind = "probe"
	KindRoutingDiff Kind = "routing_diff"
	KindShadow      Kind = "shadow"
)

// Run is one recorded batch.
type Run struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Label      string     `json:"label"`
	BaseURL    string     `json:"base_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Total      int        `json:"total"`
	Pass       int        `json:"pass"`
	Fail       int        `json:"fail"`
	Skip       int        `json:"skip"`
	Error      int        `json:"error"`
	// Failure is set when the run ended on an error instead of finishing.
	Failure *string `json:"failure"`
}

// PassRate is Pass over the rows that carried expectations.
func (r *Run) PassRate() float64 {
	graded := r.Pass + r.Fail + r.Error
	if graded == 0 {
		return 0
	}
	return float64(r.Pass) / float64(graded)
}

// Row is one stored probe row.
type Row struct {
	RunID        string             `json:"run_id"`
	Idx          int                `json:"idx"`
	Question     string             `json:"question"`
	SuiteStatus  models.SuiteStatus `json:"suite_status"`
	HTTPStatus   *int               `json:"http_status"`
	ChosenIntent *string            `json:"chosen_intent"`
	ChosenEntity *string            `json:"chosen_entity"`
	LatencyMS    float64            `json:"latency_ms"`
	RequestError *string            `json:"request_error"`
}

// CreateRun records the start of a run.
func (db *DB) CreateRun(r *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, kind, label, base_url, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, string(r.Kind), r.Label, r.BaseURL, formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func (db *DB) FinishRun(id string, finishedAt time.Time, total, pass, fail, skip, errCount int) error {
	res, err := db.Exec(`
		UPDATE runs SET finished_at = ?, total = ?, pass = ?, fail = ?, skip = ?, error = ?
		WHERE id = ?
	`, formatTime(finishedAt), total, pass, fail, skip, errCount, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %s not found", id)
	}
	return nil
}

// AbortRun marks a run as ended by cause. The finish time is kept when
// the run already finished.
func (db *DB) AbortRun(id string, at time.Time, cause string) error {
	_, err := db.Exec(`
		UPDATE runs SET finished_at = COALESCE(finished_at, ?), failure = ?
		WHERE id = ?
	`, formatTime(at), cause, id)
	if err != nil {
		return fmt.Errorf("abort run: %w", err)
	}
	return nil
}

// InsertRows stores probe rows for a run in one transaction.
func (db *DB) InsertRows(runID string, rows []models.ProbeRow) error {
	return db.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO probe_rows (run_id, idx, question, suite_status, http_status, chosen_intent, chosen_entity, latency_ms, request_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			_, err := stmt.Exec(runID, r.Idx, r.Question, string(r.SuiteStatus),
				nullInt(r.HTTPStatus), nullString(r.ChosenIntent), nullString(r.ChosenEntity),
				r.LatencyMS, nullString(r.RequestError))
			if err != nil {
				return fmt.Errorf("insert probe row %d: %w", r.Idx, err)
			}
		}
		return nil
	})
}

const runColumns = `id, kind, label, base_url, started_at, finished_at, total, pass, fail, skip, error, failure`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt, failure sql.NullString
	if err := s.Scan(&r.ID, &r.Kind, &r.Label, &r.BaseURL, &startedAt, &finishedAt,
		&r.Total, &r.Pass, &r.Fail, &r.Skip, &r.Error, &failure); err != nil {
		return nil, err
	}
	r.Failure = fromNull(failure)
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// GetRun returns the run with id, or nil when there is none.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// ListRows returns the rows of a run in index order, optionally filtered
// by status.
func (db *DB) ListRows(runID string, status *models.SuiteStatus) ([]Row, error) {
	query := `
		SELECT run_id, idx, question, suite_status, http_status, chosen_intent, chosen_entity, latency_ms, request_error
		FROM probe_rows WHERE run_id = ?`
	args := []any{runID}
	if status != nil {
		query += ` AND suite_status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY idx`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var httpStatus sql.NullInt64
		var intent, entity, reqErr sql.NullString
		if err := rows.Scan(&r.RunID, &r.Idx, &r.Question, &r.SuiteStatus, &httpStatus,
			&intent, &entity, &r.LatencyMS, &reqErr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if httpStatus.Valid {
			v := int(httpStatus.Int64)
			r.HTTPStatus = &v
		}
		r.ChosenIntent = fromNull(intent)
		r.ChosenEntity = fromNull(entity)
		r.RequestError = fromNull(reqErr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes runs started before now minus olderThan, with
// their rows. Returns the number of runs deleted.
func (db *DB) PurgeOlderThan(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var count int64
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM probe_rows WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
		`, cutoff); err != nil {
			return fmt.Errorf("purge old rows: %w", err)
		}
		result, err := tx.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("purge old runs: %w", err)
		}
		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
