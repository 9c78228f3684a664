package generation

import (
	"context"

	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

// accept sends m to the sink when it is fully saturated, connected and its
// identity is new to the run.  Rejections are counted, not returned; only
// identity set and sink failures are errors.
func (r *Run) accept(ctx context.Context, m *molecule.Molecule) error {
	r.stats.saturated.Add(1)

	if !m.FullySaturated() {
		r.reject(&r.stats.unsaturated, RejectUnsaturated)
		return nil
	}
	if !m.IsConnected() {
		r.reject(&r.stats.disconnected, RejectDisconnected)
		return nil
	}

	id, err := r.engine.identity.Identity(m)
	if err != nil {
		r.logger.Warn("identity oracle failed, candidate dropped",
			logging.String("molecule", m.String()), logging.Err(err))
		r.reject(&r.stats.oracleDrops, RejectOracle)
		return nil
	}

	r.emit.Lock()
	defer r.emit.Unlock()

	added, err := r.set.TryAdd(ctx, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIdentitySet, "identity set insert failed")
	}
	if !added {
		r.reject(&r.stats.duplicates, RejectDuplicate)
		return nil
	}

	r.seq++
	s := Structure{Seq: r.seq, RunID: r.id, Identity: id, Molecule: m}
	if err := r.sink.Write(ctx, s); err != nil {
		return errors.Wrap(err, errors.CodeSinkWrite, "failed to write structure").
			WithDetail(m.String())
	}
	r.stats.accepted.Add(1)
	r.recorder.StructureAccepted()
	return nil
}

func (r *Run) reject(counter interface{ Add(int64) int64 }, reason string) {
	counter.Add(1)
	r.recorder.StructureRejected(reason)
}
