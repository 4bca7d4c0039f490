package gossip

import (
	"encoding/json"
	"fmt"

	"github.com/jabolina/mael-node/internal/crdt"
)

func encodeStateVector(sv crdt.StateVector) ([]byte, error) {
	b, err := json.Marshal(sv)
	if err != nil {
		return nil, fmt.Errorf("marshal state vector: %w", err)
	}
	return b, nil
}

func decodeStateVector(raw []byte) (crdt.StateVector, error) {
	sv := make(crdt.StateVector)
	if len(raw) == 0 {
		return sv, nil
	}
	if err := json.Unmarshal(raw, &sv); err != nil {
		return nil, fmt.Errorf("unmarshal state vector: %w", err)
	}
	return sv, nil
}
