package repositories

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	appErrors "github.com/turtacn/hmd/pkg/errors"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB is an in-memory querier.
type fakeDB struct {
	calls   []execCall
	tag     string
	execErr error
	row     fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.row
}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

var fixedNow = time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC)

func newTestRepo(db *fakeDB) *StructureRepository {
	r := NewStructureRepository(db, nil)
	r.now = func() time.Time { return fixedNow }
	return r
}

func propane(t *testing.T) *molecule.Molecule {
	t.Helper()
	m, err := molecule.Build("C3C2C3")
	require.NoError(t, err)
	require.NoError(t, m.AddBond(0, 1, 1))
	require.NoError(t, m.AddBond(1, 2, 1))
	return m
}

func TestWrite_InsertsStructure(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 1"}
	repo := newTestRepo(db)

	s := generation.Structure{Seq: 3, RunID: "r1", Identity: "C3.C2.C3|0-1:1 1-2:1", Molecule: propane(t)}
	require.NoError(t, repo.Write(context.Background(), s))

	require.Len(t, db.calls, 1)
	call := db.calls[0]
	assert.Contains(t, call.sql, "INSERT INTO structures")
	assert.Contains(t, call.sql, "ON CONFLICT (run_id, structure_key) DO NOTHING")
	require.Len(t, call.args, 9)
	assert.Equal(t, "r1", call.args[0])
	assert.Equal(t, int64(3), call.args[1])
	assert.Equal(t, canon.Key(s.Identity), call.args[2])
	assert.Equal(t, s.Identity, call.args[3])
	assert.Equal(t, "C3C2C3", call.args[4])
	assert.Equal(t, 3, call.args[5])
	assert.Equal(t, 2, call.args[6])
	assert.True(t, strings.HasSuffix(call.args[7].(string), "M  END\n"))
	assert.Equal(t, fixedNow, call.args[8])
}

func TestWrite_ReplayIsNoop(t *testing.T) {
	db := &fakeDB{tag: "INSERT 0 0"}
	repo := newTestRepo(db)
	s := generation.Structure{Seq: 1, RunID: "r1", Identity: "x", Molecule: propane(t)}
	assert.NoError(t, repo.Write(context.Background(), s))
}

func TestWrite_ExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("connection lost")}
	repo := newTestRepo(db)
	err := repo.Write(context.Background(), generation.Structure{Identity: "x", Molecule: propane(t)})
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeDatabaseError))
}

func TestCountByRun(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = 42
		return nil
	}}}
	repo := newTestRepo(db)

	n, err := repo.CountByRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, []any{"r1"}, db.calls[0].args)
}

func TestStartAndFinishRun(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 1"}
	repo := newTestRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.StartRun(ctx, "r1", "C3C3"))
	require.NoError(t, repo.FinishRun(ctx, "r1", 5, 9, nil))
	require.NoError(t, repo.FinishRun(ctx, "r1", 0, 1, errors.New("sink closed")))

	require.Len(t, db.calls, 3)
	assert.Equal(t, []any{"r1", "C3C3", RunStatusRunning, fixedNow}, db.calls[0].args)
	assert.Equal(t, []any{"r1", RunStatusFinished, int64(5), int64(9), "", fixedNow}, db.calls[1].args)
	assert.Equal(t, RunStatusFailed, db.calls[2].args[1])
	assert.Equal(t, "sink closed", db.calls[2].args[4])
}

func TestFinishRun_UnknownRun(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 0"}
	err := newTestRepo(db).FinishRun(context.Background(), "missing", 0, 0, nil)
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeNotFound))
}

func TestGetRun(t *testing.T) {
	finished := fixedNow.Add(time.Minute)
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "r1"
		*dest[1].(*string) = "C3C3"
		*dest[2].(*string) = RunStatusFinished
		*dest[3].(*int64) = 1
		*dest[4].(*int64) = 3
		*dest[5].(*string) = ""
		*dest[6].(*time.Time) = fixedNow
		*dest[7].(**time.Time) = &finished
		return nil
	}}}

	rec, err := newTestRepo(db).GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "C3C3", rec.Formula)
	assert.Equal(t, int64(3), rec.WorkingSet)
	require.NotNil(t, rec.FinishedAt)
	assert.Equal(t, finished, *rec.FinishedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}}
	_, err := newTestRepo(db).GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrCodeNotFound))
}
