package generation

import (
	"context"
	"sync"

	"github.com/turtacn/hmd/internal/domain/molecule"
)

// Structure is an accepted molecule handed to a Sink.
type Structure struct {
	// Seq numbers accepted structures of a run from 1.
	Seq      int64
	RunID    string
	Identity string
	Molecule *molecule.Molecule
}

// Sink receives every accepted structure as soon as it is found.  A Write
// error aborts the run.
type Sink interface {
	Write(ctx context.Context, s Structure) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s Structure) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, s Structure) error { return f(ctx, s) }

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

// Write implements Sink.
func (ms MultiSink) Write(ctx context.Context, s Structure) error {
	for _, sink := range ms {
		if err := sink.Write(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// IdentitySet is the run's dedup set.  TryAdd inserts identity and reports
// whether it was absent; the check and insert are one atomic step.
type IdentitySet interface {
	TryAdd(ctx context.Context, identity string) (bool, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryIdentitySet is a process-local IdentitySet.
type MemoryIdentitySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryIdentitySet returns an empty set.
func NewMemoryIdentitySet() *MemoryIdentitySet {
	return &MemoryIdentitySet{ids: make(map[string]struct{})}
}

// TryAdd implements IdentitySet.
func (s *MemoryIdentitySet) TryAdd(_ context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[identity]; ok {
		return false, nil
	}
	s.ids[identity] = struct{}{}
	return true, nil
}

// Len implements IdentitySet.
func (s *MemoryIdentitySet) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.ids)), nil
}

// Rejection reasons reported to a Recorder.
const (
	RejectUnsaturated  = "unsaturated"
	RejectDisconnected = "disconnected"
	RejectDuplicate    = "duplicate"
	RejectOracle       = "oracle_failure"
)

// Recorder observes the progress of a run.  The Prometheus metrics adapter
// implements it.
type Recorder interface {
	CandidatesGenerated(n int)
	StructureAccepted()
	StructureRejected(reason string)
	WorkingSetSize(n int)
}

type nopRecorder struct{}

func (nopRecorder) CandidatesGenerated(int)  {}
func (nopRecorder) StructureAccepted()       {}
func (nopRecorder) StructureRejected(string) {}
func (nopRecorder) WorkingSetSize(int)       {}
