package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intake/internal/domain"
)

const execDateLayout = "2006-01-02"

// RunStore implements domain.RunStore on the history database.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// ErrRunNotFound is returned by GetRun and LastRun.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, source, step, exec_date, path, target, status, rows, error, started_at, finished_at`

// CreateRun inserts r with a fresh id. Status defaults to running.
func (s *RunStore) CreateRun(r *domain.Run) error {
	r.ID = uuid.New().String()
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.RunStatusRunning
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Source, string(r.Step), r.ExecDate.Format(execDateLayout), r.Path, r.Target,
		r.Status, r.Rows, r.Error, r.StartedAt, r.FinishedAt,
	)
	return err
}

// FinishRun records the outcome of r. FinishedAt is set when empty.
func (s *RunStore) FinishRun(r *domain.Run) error {
	if r.FinishedAt == nil {
		now := time.Now().UTC()
		r.FinishedAt = &now
	}
	res, err := s.db.conn.Exec(
		`UPDATE runs SET status = ?, rows = ?, error = ?, path = ?, target = ?, finished_at = ? WHERE id = ?`,
		r.Status, r.Rows, r.Error, r.Path, r.Target, *r.FinishedAt, r.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, r.ID)
	}
	return nil
}

func (s *RunStore) GetRun(id string) (*domain.Run, error) {
	row := s.db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first. An empty source
// lists every source.
func (s *RunStore) ListRuns(source string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(
		`SELECT `+runColumns+` FROM runs
		 WHERE (? = '' OR source = ?)
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		source, source, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LastRun returns the newest run of step for source.
func (s *RunStore) LastRun(source string, step domain.RunStep) (*domain.Run, error) {
	row := s.db.conn.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE source = ? AND step = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`,
		source, string(step),
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, source, step)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var (
		r        domain.Run
		step     string
		execDate string
		finished sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.Source, &step, &execDate, &r.Path, &r.Target,
		&r.Status, &r.Rows, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	r.Step = domain.RunStep(step)
	d, err := time.ParseInLocation(execDateLayout, execDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("run %s: exec_date: %w", r.ID, err)
	}
	r.ExecDate = d
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
