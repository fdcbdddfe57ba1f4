package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("job not found")

const DefaultListLimit = 50

// Store persists terminal job snapshots. Queries are written with ?
// placeholders and rebound for Driver.
type Store struct {
	DB     *sql.DB
	Driver string
}

const columns = `id, session_id, state, model, command_line, output, exit_code,
	error_detail, payload_dir, started_at, finished_at`

// Record upserts snap. It satisfies orchestrator.Recorder.
func (s *Store) Record(ctx context.Context, snap orchestrator.Snapshot) error {
	var exitCode sql.NullInt64
	if snap.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*snap.ExitCode), Valid: true}
	}
	var finishedAt sql.NullTime
	if snap.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *snap.FinishedAt, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO analysis_jobs (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			output = EXCLUDED.output,
			exit_code = EXCLUDED.exit_code,
			error_detail = EXCLUDED.error_detail,
			payload_dir = EXCLUDED.payload_dir,
			finished_at = EXCLUDED.finished_at
	`),
		snap.ID, snap.SessionID, snap.State.String(), snap.Model, snap.CommandLine, snap.Output,
		exitCode, snap.ErrorDetail, snap.PayloadDir, snap.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", snap.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (orchestrator.Snapshot, error) {
	row := s.DB.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM analysis_jobs WHERE id = ?`), id)
	snap, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return orchestrator.Snapshot{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return snap, nil
}

// List returns the most recent jobs first. A non-positive limit uses
// DefaultListLimit. A non-empty sessionID narrows the result.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]orchestrator.Snapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + columns + ` FROM analysis_jobs`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	args = append(args, limit)
	query += ` ORDER BY started_at DESC LIMIT ?`

	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.Snapshot
	for rows.Next() {
		snap, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read job row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (orchestrator.Snapshot, error) {
	var (
		snap       orchestrator.Snapshot
		state      string
		exitCode   sql.NullInt64
		startedAt  time.Time
		finishedAt sql.NullTime
	)
	err := row.Scan(&snap.ID, &snap.SessionID, &state, &snap.Model, &snap.CommandLine, &snap.Output,
		&exitCode, &snap.ErrorDetail, &snap.PayloadDir, &startedAt, &finishedAt)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}

	snap.State, err = orchestrator.ParseState(state)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	snap.StartedAt = startedAt.UTC()
	if exitCode.Valid {
		code := int(exitCode.Int64)
		snap.ExitCode = &code
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		snap.FinishedAt = &t
	}
	return snap, nil
}

func (s *Store) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(s.Driver), query)
}
