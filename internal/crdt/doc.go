// Package crdt implements the state-based replicated data types shared
// by the broadcast, g-counter, and kafka-log workloads: a common Doc
// contract (state_vector/encode_diff/apply_update) driven by the
// gossip engine, with each concrete type choosing whatever internal
// representation makes its own merge idempotent and commutative. No
// library in the retrieved corpus ports a CRDT (Yjs/YATA and similar
// have no Go equivalent anywhere in the pack); the hand-rolled
// approach here follows the same choice the Polqt crdt-collab example
// makes for its RGA document, which is likewise hand-rolled rather
// than wrapping a vendored CRDT library.
package crdt

// StateVector summarizes how much of each origin node's causal history
// a replica has incorporated. For op-log-backed docs this is an op
// count per origin; for docs that are naturally state-based (GCounter)
// it is the current value per origin, which serves the same role.
type StateVector map[string]uint64

// Clone returns an independent copy, since callers hold onto a
// snapshot across a gossip round while the live vector keeps moving.
func (sv StateVector) Clone() StateVector {
	out := make(StateVector, len(sv))
	for k, v := range sv {
		out[k] = v
	}
	return out
}

// Doc is implemented by every replicated type the gossip engine drives.
// EncodeDiff must be idempotent to re-send (resending an already-applied
// diff is a no-op) and ApplyUpdate must be commutative (applying two
// peers' diffs in either order converges to the same state).
type Doc interface {
	StateVector() StateVector
	EncodeDiff(remote StateVector) ([]byte, error)
	ApplyUpdate(update []byte) error
}

// Equal reports whether two state vectors agree on every origin either
// has seen anything from, used by the gossip engine to decide whether a
// peer is already converged.
func Equal(a, b StateVector) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
