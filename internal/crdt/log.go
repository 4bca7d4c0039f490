package crdt

import (
	"encoding/json"
	"sort"
	"sync"
)

// op is one causally-ordered, per-origin entry in a replicated log.
// (Origin, Seq) is a globally unique identity: the same op arriving
// twice folds exactly once, which is what makes ApplyUpdate idempotent.
type op struct {
	Origin  string          `json:"origin"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// replicatedLog is the append-only, per-origin backing store shared by
// ORSet and KafkaLog. Each origin's own ops are appended strictly in
// seq order by that origin; ops from other origins arrive via gossip
// and may arrive with gaps (message loss, racing diffs), so merge
// buffers anything that isn't yet contiguous rather than dropping it.
type replicatedLog struct {
	mu      sync.Mutex
	nodeID  string
	ops     map[string][]op // contiguous, applied ops per origin, seq 0..len-1
	pending map[string]map[uint64]op
}

func newReplicatedLog(nodeID string) *replicatedLog {
	return &replicatedLog{
		nodeID:  nodeID,
		ops:     make(map[string][]op),
		pending: make(map[string]map[uint64]op),
	}
}

// stateVector reports, per origin, how many contiguous ops from that
// origin's history have been applied.
func (l *replicatedLog) stateVector() StateVector {
	l.mu.Lock()
	defer l.mu.Unlock()
	sv := make(StateVector, len(l.ops))
	for origin, os := range l.ops {
		sv[origin] = uint64(len(os))
	}
	return sv
}

// append records a new op authored by this node and returns it so the
// caller can fold it into its own view immediately (a node always sees
// its own writes before any gossip round).
func (l *replicatedLog) append(payload json.RawMessage) op {
	l.mu.Lock()
	defer l.mu.Unlock()
	seq := uint64(len(l.ops[l.nodeID]))
	o := op{Origin: l.nodeID, Seq: seq, Payload: payload}
	l.ops[l.nodeID] = append(l.ops[l.nodeID], o)
	return o
}

// diff returns every op the remote side hasn't seen yet, per its
// reported state vector.
func (l *replicatedLog) diff(remote StateVector) []op {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []op
	for origin, os := range l.ops {
		have := remote[origin]
		if have < uint64(len(os)) {
			out = append(out, os[have:]...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// merge folds whatever ops are newly contiguous (possibly none, if
// everything offered is either already applied or still has a gap
// before it) and returns exactly those, for the caller to fold into its
// own derived state.
func (l *replicatedLog) merge(incoming []op) []op {
	l.mu.Lock()
	defer l.mu.Unlock()

	var applied []op

	for _, o := range incoming {
		cur := uint64(len(l.ops[o.Origin]))
		switch {
		case o.Seq < cur:
			// already applied, idempotent no-op
		case o.Seq == cur:
			l.ops[o.Origin] = append(l.ops[o.Origin], o)
			applied = append(applied, o)
		default:
			if l.pending[o.Origin] == nil {
				l.pending[o.Origin] = make(map[uint64]op)
			}
			l.pending[o.Origin][o.Seq] = o
		}

		// Draining right after each insert keeps a single pass correct
		// even when incoming carries a gap-filler followed later by
		// its successor in the same batch.
		for {
			next, ok := l.pending[o.Origin][uint64(len(l.ops[o.Origin]))]
			if !ok {
				break
			}
			l.ops[o.Origin] = append(l.ops[o.Origin], next)
			applied = append(applied, next)
			delete(l.pending[o.Origin], uint64(len(l.ops[o.Origin])-1))
		}
	}

	return applied
}
