// Package repositories holds the PostgreSQL implementations of the structure
// registry.
package repositories

import (
	"bytes"
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/internal/infrastructure/storage/sdf"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	appErrors "github.com/turtacn/hmd/pkg/errors"
)

// Run statuses stored in generation_runs.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// querier abstracts *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ─────────────────────────────────────────────────────────────────────────────
// StructureRepository
// ─────────────────────────────────────────────────────────────────────────────

// StructureRepository persists accepted structures and run bookkeeping.  It
// implements generation.Sink.
type StructureRepository struct {
	db     querier
	logger logging.Logger
	now    func() time.Time
}

var _ generation.Sink = (*StructureRepository)(nil)

// NewStructureRepository constructs a ready-to-use StructureRepository.
func NewStructureRepository(db querier, logger logging.Logger) *StructureRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StructureRepository{db: db, logger: logger, now: time.Now}
}

const insertStructureSQL = `
INSERT INTO structures (run_id, seq, structure_key, identity, formula, atom_count, bond_count, molblock, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (run_id, structure_key) DO NOTHING`

// Write implements generation.Sink.  Replaying a structure already stored for
// the run is a no-op.
func (r *StructureRepository) Write(ctx context.Context, s generation.Structure) error {
	now := r.now()
	var buf bytes.Buffer
	if err := sdf.EncodeMolBlock(&buf, s.Molecule, s.Molecule.Formula(), now); err != nil {
		return err
	}

	key := canon.Key(s.Identity)
	tag, err := r.db.Exec(ctx, insertStructureSQL,
		s.RunID, s.Seq, key, s.Identity, s.Molecule.Formula(),
		s.Molecule.AtomCount(), s.Molecule.BondCount(), buf.String(), now.UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert structure").
			WithDetail(key)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("structure already stored",
			logging.String("run_id", s.RunID), logging.String("key", key))
	}
	return nil
}

const countStructuresSQL = `SELECT count(*) FROM structures WHERE run_id = $1`

// CountByRun returns how many structures are stored for runID.
func (r *StructureRepository) CountByRun(ctx context.Context, runID string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, countStructuresSQL, runID).Scan(&n); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count structures").
			WithDetail(runID)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Run bookkeeping
// ─────────────────────────────────────────────────────────────────────────────

// RunRecord is one row of generation_runs.
type RunRecord struct {
	ID         string
	Formula    string
	Status     string
	Accepted   int64
	WorkingSet int64
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

const startRunSQL = `
INSERT INTO generation_runs (id, formula, status, started_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, started_at = EXCLUDED.started_at`

// StartRun records that runID began generating from formula.
func (r *StructureRepository) StartRun(ctx context.Context, runID, formula string) error {
	if _, err := r.db.Exec(ctx, startRunSQL, runID, formula, RunStatusRunning, r.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to record run start").
			WithDetail(runID)
	}
	return nil
}

const finishRunSQL = `
UPDATE generation_runs
SET status = $2, accepted = $3, working_set = $4, error = $5, finished_at = $6
WHERE id = $1`

// FinishRun stores the outcome of runID.  A nil runErr marks it finished.
func (r *StructureRepository) FinishRun(ctx context.Context, runID string, accepted, workingSet int64, runErr error) error {
	status, msg := RunStatusFinished, ""
	if runErr != nil {
		status, msg = RunStatusFailed, runErr.Error()
	}
	tag, err := r.db.Exec(ctx, finishRunSQL, runID, status, accepted, workingSet, msg, r.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to record run outcome").
			WithDetail(runID)
	}
	if tag.RowsAffected() == 0 {
		return appErrors.Newf(appErrors.ErrCodeNotFound, "run %s not found", runID)
	}
	return nil
}

const getRunSQL = `
SELECT id, formula, status, accepted, working_set, error, started_at, finished_at
FROM generation_runs WHERE id = $1`

// GetRun loads one run.
func (r *StructureRepository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.QueryRow(ctx, getRunSQL, runID).Scan(
		&rec.ID, &rec.Formula, &rec.Status, &rec.Accepted, &rec.WorkingSet,
		&rec.Error, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, appErrors.Newf(appErrors.ErrCodeNotFound, "run %s not found", runID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to load run").
			WithDetail(runID)
	}
	return &rec, nil
}
