package crdt

import (
	"encoding/json"
	"fmt"
	"sync"
)

// GCounter is a grow-only counter: each origin owns a single monotonic
// slot it alone increments, total value is the sum of every slot, and
// merge is element-wise max -- naturally idempotent and commutative
// without needing an op log.
type GCounter struct {
	mu     sync.RWMutex
	nodeID string
	counts map[string]int64
}

func NewGCounter(nodeID string) *GCounter {
	return &GCounter{
		nodeID: nodeID,
		counts: map[string]int64{nodeID: 0},
	}
}

// Add increments this node's own slot. delta must be non-negative;
// g-counter only ever grows.
func (g *GCounter) Add(delta int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[g.nodeID] += delta
}

// Value returns the sum across every known origin's slot.
func (g *GCounter) Value() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var total int64
	for _, v := range g.counts {
		total += v
	}
	return total
}

// StateVector reuses the slot values themselves: for a counter, "how
// much of origin X have I seen" and "origin X's current value" are the
// same number.
func (g *GCounter) StateVector() StateVector {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sv := make(StateVector, len(g.counts))
	for origin, v := range g.counts {
		sv[origin] = uint64(v)
	}
	return sv
}

// EncodeDiff returns only the slots this node knows to be ahead of
// remote's reported state, keeping gossip payloads proportional to
// what actually changed rather than the full vector every round.
func (g *GCounter) EncodeDiff(remote StateVector) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	diff := make(map[string]int64)
	for origin, v := range g.counts {
		if uint64(v) > remote[origin] {
			diff[origin] = v
		}
	}
	b, err := json.Marshal(diff)
	if err != nil {
		return nil, fmt.Errorf("encode gcounter diff: %w", err)
	}
	return b, nil
}

// ApplyUpdate merges a peer's slots in via element-wise max.
func (g *GCounter) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return nil
	}
	var diff map[string]int64
	if err := json.Unmarshal(update, &diff); err != nil {
		return fmt.Errorf("decode gcounter diff: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for origin, v := range diff {
		if v > g.counts[origin] {
			g.counts[origin] = v
		}
	}
	return nil
}
