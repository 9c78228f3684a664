// Package structgen provides the application-level service for structure
// generation.  It wires the molecule model, the canonicalisation oracles and
// the generation engine to the configured sinks, identity set, metrics and
// artifact store.
package structgen

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/internal/infrastructure/storage/minio"
	"github.com/turtacn/hmd/internal/infrastructure/storage/sdf"
	"github.com/turtacn/hmd/internal/intelligence/canon"
	"github.com/turtacn/hmd/pkg/errors"
)

// Service defines the structure generation operations.
type Service interface {
	Generate(ctx context.Context, input *GenerateInput) (*GenerateResult, error)
	Classes(ctx context.Context, formula string) (*ClassesResult, error)
}

// GenerateInput contains the input of one generation run.
type GenerateInput struct {
	Formula   string
	OutputDir string
	// FileName defaults to output.sdf.
	FileName string
	// RunID is generated when empty.
	RunID string
}

// GenerateResult summarises a finished run.
type GenerateResult struct {
	RunID      string              `json:"run_id"`
	Formula    string              `json:"formula"`
	Pending    []int               `json:"pending"`
	Accepted   int64               `json:"accepted"`
	WorkingSet int                 `json:"working_set"`
	Stats      generation.Stats    `json:"stats"`
	Duration   time.Duration       `json:"duration"`
	OutputPath string              `json:"output_path"`
	Artifact   *minio.UploadResult `json:"artifact,omitempty"`
}

// ClassesResult describes the initial equivalence classes of a formula.
type ClassesResult struct {
	Formula string             `json:"formula"`
	Atoms   []string           `json:"atoms"`
	Labels  []int              `json:"labels"`
	Classes []generation.Class `json:"classes"`
	Pending []int              `json:"pending"`
}

// DefaultFileName is the SD file written into the output directory.
const DefaultFileName = "output.sdf"

// RunRegistry records runs and their structures.  The Postgres structure
// repository implements it.
type RunRegistry interface {
	generation.Sink
	StartRun(ctx context.Context, runID, formula string) error
	FinishRun(ctx context.Context, runID string, accepted, workingSet int64, runErr error) error
}

// ArtifactStore uploads the output file of a run.
type ArtifactStore interface {
	UploadRun(ctx context.Context, runID, filePath string) (*minio.UploadResult, error)
}

// RunMetrics records generation progress and exports it once the run ends.
type RunMetrics interface {
	generation.Recorder
	RecordRun(d time.Duration, accepted int64, err error)
	Export(ctx context.Context, runID string) error
}

// IdentitySetFactory returns the identity set of a run.
type IdentitySetFactory func(runID string) generation.IdentitySet

// Backends holds the optional collaborators of the service.  Nil fields are
// disabled; a nil IdentitySets selects an in-memory set per run.
type Backends struct {
	IdentitySets IdentitySetFactory
	Stream       generation.Sink
	Registry     RunRegistry
	Artifacts    ArtifactStore
	Metrics      RunMetrics
	// Probes report backend health to the run monitor.
	Probes []Probe
}

// Probe is a named backend health check.
type Probe struct {
	Component string
	Fn        func(ctx context.Context) error
}

// Name returns the component name.
func (p Probe) Name() string { return p.Component }

// Check runs the health check.
func (p Probe) Check(ctx context.Context) error { return p.Fn(ctx) }

// Options tunes the engine.
type Options struct {
	Workers int
	Clock   func() time.Time
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	engine   *generation.Engine
	symmetry molecule.SymmetryOracle
	backends Backends
	logger   logging.Logger
	now      func() time.Time
}

// NewService creates a structure generation service.
func NewService(backends Backends, opts Options, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	symmetry := canon.NewSymmetry()
	return &serviceImpl{
		engine: generation.NewEngine(symmetry, canon.NewCanonical(),
			generation.WithWorkers(opts.Workers),
			generation.WithLogger(logger.Named("engine"))),
		symmetry: symmetry,
		backends: backends,
		logger:   logger,
		now:      opts.Clock,
	}
}

func (s *serviceImpl) Generate(ctx context.Context, input *GenerateInput) (*GenerateResult, error) {
	if input == nil || input.Formula == "" {
		return nil, errors.InvalidParam("formula is required")
	}
	if input.OutputDir == "" {
		return nil, errors.InvalidParam("output directory is required")
	}
	fileName := input.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}
	runID := input.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := s.logger.With(logging.String("run_id", runID))

	seed, err := molecule.Build(input.Formula)
	if err != nil {
		return nil, err
	}
	log.Debug("input molecule is built",
		logging.String("formula", seed.Formula()),
		logging.Int("atoms", seed.AtomCount()))

	writer, err := sdf.Create(input.OutputDir, fileName, sdf.WithClock(s.now))
	if err != nil {
		return nil, err
	}
	sinks := generation.MultiSink{writer}
	if s.backends.Stream != nil {
		sinks = append(sinks, s.backends.Stream)
	}
	if reg := s.backends.Registry; reg != nil {
		if err := reg.StartRun(ctx, runID, input.Formula); err != nil {
			_ = writer.Close()
			return nil, err
		}
		sinks = append(sinks, reg)
	}

	var set generation.IdentitySet
	if s.backends.IdentitySets != nil {
		set = s.backends.IdentitySets(runID)
	}
	cfg := generation.RunConfig{RunID: runID, Set: set, Sink: sinks}
	if s.backends.Metrics != nil {
		cfg.Recorder = s.backends.Metrics
	}

	run := s.engine.NewRun(cfg)
	res, runErr := run.Generate(ctx, seed)
	if cerr := writer.Close(); cerr != nil && runErr == nil {
		runErr = cerr
	}

	out := &GenerateResult{
		RunID:      runID,
		Formula:    input.Formula,
		OutputPath: writer.Path(),
		Stats:      run.Stats(),
		Accepted:   run.Stats().Accepted,
	}
	if res != nil {
		out.Pending = res.Pending
		out.WorkingSet = len(res.WorkingSet)
		out.Duration = res.Duration
	}
	s.finish(ctx, log, out, runErr)
	if runErr != nil {
		return out, runErr
	}

	if s.backends.Artifacts != nil {
		artifact, err := s.backends.Artifacts.UploadRun(ctx, runID, out.OutputPath)
		if err != nil {
			return out, err
		}
		out.Artifact = artifact
	}

	log.Info("generation finished",
		logging.Int64("accepted", out.Accepted),
		logging.Int("working_set", out.WorkingSet),
		logging.Duration("duration", out.Duration))
	return out, nil
}

// finish reports the outcome to the registry and metrics.  Their failures
// are logged; the run outcome stands.
func (s *serviceImpl) finish(ctx context.Context, log logging.Logger, out *GenerateResult, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if reg := s.backends.Registry; reg != nil {
		if err := reg.FinishRun(ctx, out.RunID, out.Accepted, int64(out.WorkingSet), runErr); err != nil {
			log.Warn("failed to record run", logging.Err(err))
		}
	}
	if m := s.backends.Metrics; m != nil {
		m.RecordRun(out.Duration, out.Accepted, runErr)
		if err := m.Export(ctx, out.RunID); err != nil {
			log.Warn("failed to export metrics", logging.Err(err))
		}
	}
	if runErr != nil {
		log.Error("generation failed", logging.Int64("accepted", out.Accepted), logging.Err(runErr))
	}
}

func (s *serviceImpl) Classes(_ context.Context, formula string) (*ClassesResult, error) {
	if formula == "" {
		return nil, errors.InvalidParam("formula is required")
	}
	m, err := molecule.Build(formula)
	if err != nil {
		return nil, err
	}
	labels, err := s.symmetry.Symmetry(m)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOracleFailure, "symmetry oracle failed")
	}
	classes, err := generation.Classify(m, labels)
	if err != nil {
		return nil, err
	}
	atoms := make([]string, 0, m.AtomCount())
	for _, a := range m.Atoms() {
		atoms = append(atoms, atomToken(a))
	}
	return &ClassesResult{
		Formula: formula,
		Atoms:   atoms,
		Labels:  labels,
		Classes: classes,
		Pending: generation.FlattenIndices(classes),
	}, nil
}

// atomToken renders a as the formula token it was parsed from.
func atomToken(a molecule.Atom) string {
	if a.ImplicitH == 0 {
		return a.Symbol
	}
	return a.Symbol + strconv.Itoa(a.ImplicitH)
}
