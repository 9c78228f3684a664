// Package generation implements the structure generator: equivalence-class
// driven bond extension of a seed molecule, saturation of one atom at a time
// with backtracking, and acceptance of saturated connected structures
// through the identity set.
package generation

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

// Engine holds the oracles and tunables shared by runs.  It is stateless
// between runs and safe for concurrent use.
type Engine struct {
	symmetry molecule.SymmetryOracle
	identity molecule.IdentityOracle
	logger   logging.Logger
	workers  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithWorkers sets how many working-set members are saturated in parallel.
// Values below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		e.workers = n
	}
}

// NewEngine builds an Engine from the two oracles.
func NewEngine(symmetry molecule.SymmetryOracle, identity molecule.IdentityOracle, opts ...Option) *Engine {
	e := &Engine{
		symmetry: symmetry,
		identity: identity,
		logger:   logging.NewNopLogger(),
		workers:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classes computes the symmetry labels of m and groups its unsaturated atoms.
func (e *Engine) Classes(m *molecule.Molecule) ([]Class, error) {
	labels, err := e.symmetry.Symmetry(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOracleFailure, "symmetry oracle failed")
	}
	return Classify(m, labels)
}

// ExtendOneStep returns every molecule obtained by bonding seed once to the
// target selected from each equivalence class of m, in class order.  m is
// left unchanged.
func (e *Engine) ExtendOneStep(m *molecule.Molecule, seed int) ([]*molecule.Molecule, error) {
	if err := m.CheckIndex(seed); err != nil {
		return nil, err
	}
	classes, err := e.Classes(m)
	if err != nil {
		return nil, err
	}

	var out []*molecule.Molecule
	for _, c := range classes {
		target := SelectTarget(c.Indices, seed)
		if target == seed || !m.IsUnsaturated(seed) || !m.IsUnsaturated(target) {
			continue
		}
		edit, err := m.AddOrIncrease(seed, target)
		if err != nil {
			return nil, err
		}
		out = append(out, m.Clone())
		if err := m.Revert(edit); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Run: per-invocation state
// ─────────────────────────────────────────────────────────────────────────────

// RunConfig carries the run-scoped collaborators.
type RunConfig struct {
	RunID    string
	Set      IdentitySet
	Sink     Sink
	Recorder Recorder
}

// Stats counts what a run has seen so far.
type Stats struct {
	Candidates   int64
	Saturated    int64
	Accepted     int64
	Unsaturated  int64
	Disconnected int64
	Duplicates   int64
	OracleDrops  int64
}

type counters struct {
	candidates   atomic.Int64
	saturated    atomic.Int64
	accepted     atomic.Int64
	unsaturated  atomic.Int64
	disconnected atomic.Int64
	duplicates   atomic.Int64
	oracleDrops  atomic.Int64
}

// Run owns the identity set, sink and counters of one generation.  Nothing
// leaks between runs.
type Run struct {
	engine   *Engine
	id       string
	set      IdentitySet
	sink     Sink
	recorder Recorder
	logger   logging.Logger

	// emit serialises identity insertion and sink writes.
	emit  sync.Mutex
	seq   int64
	stats counters
}

// NewRun starts a run.  A nil Set gets a MemoryIdentitySet, a nil Sink
// discards structures.
func (e *Engine) NewRun(cfg RunConfig) *Run {
	r := &Run{
		engine:   e,
		id:       cfg.RunID,
		set:      cfg.Set,
		sink:     cfg.Sink,
		recorder: cfg.Recorder,
		logger:   e.logger.With(logging.String("run_id", cfg.RunID)),
	}
	if r.set == nil {
		r.set = NewMemoryIdentitySet()
	}
	if r.sink == nil {
		r.sink = SinkFunc(func(context.Context, Structure) error { return nil })
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Stats returns a snapshot of the run counters.
func (r *Run) Stats() Stats {
	return Stats{
		Candidates:   r.stats.candidates.Load(),
		Saturated:    r.stats.saturated.Load(),
		Accepted:     r.stats.accepted.Load(),
		Unsaturated:  r.stats.unsaturated.Load(),
		Disconnected: r.stats.disconnected.Load(),
		Duplicates:   r.stats.duplicates.Load(),
		OracleDrops:  r.stats.oracleDrops.Load(),
	}
}

// Saturate extends m on seed until seed is saturated, exploring every
// intermediate candidate depth-first.  Each candidate in which seed has just
// become saturated goes through acceptance and is returned, in visit order.
func (r *Run) Saturate(ctx context.Context, m *molecule.Molecule, seed int) ([]*molecule.Molecule, error) {
	if err := m.CheckIndex(seed); err != nil {
		return nil, err
	}

	var saturated []*molecule.Molecule
	stack := []*molecule.Molecule{m}
	root := true
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return saturated, errors.Canceled(err)
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !root && !cur.IsUnsaturated(seed) {
			saturated = append(saturated, cur)
			if err := r.accept(ctx, cur); err != nil {
				return saturated, err
			}
			continue
		}
		root = false

		children, err := r.engine.ExtendOneStep(cur, seed)
		if err != nil {
			if !errors.IsCode(err, errors.CodeOracleFailure) {
				return saturated, err
			}
			r.stats.oracleDrops.Add(1)
			r.recorder.StructureRejected(RejectOracle)
			r.logger.Warn("dropping candidate after oracle failure",
				logging.String("molecule", cur.String()), logging.Err(err))
			continue
		}
		r.stats.candidates.Add(int64(len(children)))
		r.recorder.CandidatesGenerated(len(children))
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return saturated, nil
}

// GenerateAll grows the working set: for every index of pending in order,
// each current member is saturated on that index and all results are
// appended after the existing members.  The returned slice is the final
// working set, seeds included.
func (r *Run) GenerateAll(ctx context.Context, seeds []*molecule.Molecule, pending []int) ([]*molecule.Molecule, error) {
	for _, s := range seeds {
		for _, idx := range pending {
			if err := s.CheckIndex(idx); err != nil {
				return nil, err
			}
		}
	}

	working := append([]*molecule.Molecule(nil), seeds...)
	r.recorder.WorkingSetSize(len(working))
	for _, idx := range pending {
		if err := ctx.Err(); err != nil {
			return working, errors.Canceled(err)
		}
		start := time.Now()
		collected, err := r.saturateAll(ctx, working, idx)
		if err != nil {
			return working, err
		}
		working = append(working, collected...)
		r.recorder.WorkingSetSize(len(working))
		r.logger.Debug("index saturated",
			logging.Int("index", idx),
			logging.Int("new", len(collected)),
			logging.Int("working_set", len(working)),
			logging.Int64("accepted", r.stats.accepted.Load()),
			logging.Duration("elapsed", time.Since(start)))
	}
	return working, nil
}

// saturateAll saturates every member of working on idx and concatenates the
// results in member order.
func (r *Run) saturateAll(ctx context.Context, working []*molecule.Molecule, idx int) ([]*molecule.Molecule, error) {
	if r.engine.workers <= 1 || len(working) < 2 {
		var out []*molecule.Molecule
		for _, m := range working {
			res, err := r.Saturate(ctx, m, idx)
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
		}
		return out, nil
	}

	slots := make([][]*molecule.Molecule, len(working))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.workers)
	for i, m := range working {
		i, m := i, m
		g.Go(func() error {
			res, err := r.Saturate(gctx, m, idx)
			slots[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []*molecule.Molecule
	for _, res := range slots {
		out = append(out, res...)
	}
	return out, nil
}

// Result summarises a completed Generate call.
type Result struct {
	RunID      string
	Pending    []int
	WorkingSet []*molecule.Molecule
	Stats      Stats
	Duration   time.Duration
}

// Generate runs the whole pipeline for seed: the initial class-ordered index
// list becomes the pending list of GenerateAll.
func (r *Run) Generate(ctx context.Context, seed *molecule.Molecule) (*Result, error) {
	start := time.Now()
	classes, err := r.engine.Classes(seed)
	if err != nil {
		return nil, err
	}
	pending := FlattenIndices(classes)
	r.logger.Info("start generating structures",
		logging.String("formula", seed.Formula()),
		logging.Ints("pending", pending))

	working, err := r.GenerateAll(ctx, []*molecule.Molecule{seed}, pending)
	res := &Result{
		RunID:      r.id,
		Pending:    pending,
		WorkingSet: working,
		Stats:      r.Stats(),
		Duration:   time.Since(start),
	}
	return res, err
}
