// Package gossip implements the anti-entropy engine driving every
// crdt.Doc: a timer injects a tick, the node picks a randomized
// neighborhood subset, and for each neighbor whose last-known state
// vector lags encodes and sends a diff -- resending with a small
// probability even when a peer looks converged, since a prior diff
// could have been dropped by the chaos-monkey network. Grounded on the
// original's broadcast/kafka gossip handler (300ms tick, base64
// URL-safe no-padding encoding, rand.random_bool(0.75) neighborhood
// selection) and on mcastellin-golang-mastery's gossiper.go ticker
// goroutine shape (time.After loop, random peer subset, serveLoop).
package gossip

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jabolina/mael-node/internal/crdt"
	"github.com/jabolina/mael-node/internal/logging"
)

// DefaultInterval is how often the engine's timer injects a tick when
// no other interval is configured, matching the original's 300ms
// sleep-loop thread.
const DefaultInterval = 300 * time.Millisecond

// ResendProbability is the chance of re-sending a diff to a peer that
// already looks fully converged, guarding against silently dropped
// gossip messages.
const ResendProbability = 0.10

// NeighborhoodProbability is the per-peer inclusion probability used
// once cluster size reaches the floor below which every peer is always
// included.
const NeighborhoodProbability = 0.75

// NeighborhoodFloor is the cluster size (self included) below which the
// neighborhood is the full peer set rather than a random subset --
// below this size a random subset risks partitioning the gossip graph.
const NeighborhoodFloor = 5

// Encoding is the wire encoding for gossip diff/state_vector payloads:
// URL-safe base64 without padding, matching the original's `ENGINE`
// constant.
var Encoding = base64.RawURLEncoding

// Sender is whatever the engine uses to deliver an encoded gossip
// message to one peer; workloads implement this over their own payload
// type (each has its own Gossip variant, or kafka-log's nested
// admin.gossip wrapper).
type Sender interface {
	SendGossip(peer string, diff, stateVector string) error
}

// Engine tracks per-peer known state and drives diff/apply rounds for a
// single crdt.Doc.
type Engine struct {
	doc    crdt.Doc
	sender Sender
	log    logging.Logger

	selfID string
	peers  []string

	rng *rand.Rand

	mu    sync.Mutex
	known map[string]crdt.StateVector
}

// New builds an Engine over doc, gossiping to peers (every node id
// except selfID). seed is exposed for deterministic tests; the
// workloads derive it from the node id, so a node's neighborhood
// selection sequence is the same from run to run.
func New(doc crdt.Doc, sender Sender, log logging.Logger, selfID string, peers []string, seed int64) *Engine {
	others := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != selfID {
			others = append(others, p)
		}
	}
	return &Engine{
		doc:    doc,
		sender: sender,
		log:    log,
		selfID: selfID,
		peers:  others,
		rng:    rand.New(rand.NewSource(seed)),
		known:  make(map[string]crdt.StateVector),
	}
}

// Tick runs one gossip round: select a neighborhood, and for each
// member send a diff if it lags (or resend stochastically if it
// doesn't).
func (e *Engine) Tick() {
	for _, peer := range e.selectNeighborhood() {
		if err := e.gossipTo(peer); err != nil {
			e.log.Warnf("gossip to %s: %v", peer, err)
		}
	}
}

func (e *Engine) gossipTo(peer string) error {
	e.mu.Lock()
	remote, ok := e.known[peer]
	e.mu.Unlock()
	if !ok {
		remote = crdt.StateVector{}
	}

	local := e.doc.StateVector()
	if crdt.Equal(local, remote) {
		if e.rng.Float64() >= ResendProbability {
			return nil
		}
	}

	diff, err := e.doc.EncodeDiff(remote)
	if err != nil {
		return fmt.Errorf("encode diff for %s: %w", peer, err)
	}

	svBytes, err := encodeStateVector(local)
	if err != nil {
		return fmt.Errorf("encode state vector for %s: %w", peer, err)
	}

	return e.sender.SendGossip(peer, Encoding.EncodeToString(diff), Encoding.EncodeToString(svBytes))
}

// HandleGossip applies an inbound peer's diff and records their
// reported state vector so future rounds know what they still lack.
func (e *Engine) HandleGossip(from string, diffB64, stateVectorB64 string) error {
	diff, err := Encoding.DecodeString(diffB64)
	if err != nil {
		return fmt.Errorf("decode gossip diff from %s: %w", from, err)
	}
	svBytes, err := Encoding.DecodeString(stateVectorB64)
	if err != nil {
		return fmt.Errorf("decode gossip state vector from %s: %w", from, err)
	}
	sv, err := decodeStateVector(svBytes)
	if err != nil {
		return fmt.Errorf("parse gossip state vector from %s: %w", from, err)
	}

	if err := e.doc.ApplyUpdate(diff); err != nil {
		return fmt.Errorf("apply gossip diff from %s: %w", from, err)
	}

	e.mu.Lock()
	e.known[from] = sv
	e.mu.Unlock()
	return nil
}

// RunTicker blocks, calling tick every interval until stop is closed.
// Workloads spawn this via their runtime.Invoker and have tick inject a
// workload-defined signal back onto the event bus, keeping the gossip
// engine itself free of any dependency on the scheduler's types.
func RunTicker(interval time.Duration, stop <-chan struct{}, tick func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			tick()
		case <-stop:
			return
		}
	}
}

// selectNeighborhood picks each peer independently with
// NeighborhoodProbability, falling back to the full peer set once the
// cluster is small enough that a random subset risks never reaching
// some member.
func (e *Engine) selectNeighborhood() []string {
	if len(e.peers)+1 < NeighborhoodFloor {
		return e.peers
	}
	out := make([]string, 0, len(e.peers))
	for _, p := range e.peers {
		if e.rng.Float64() < NeighborhoodProbability {
			out = append(out, p)
		}
	}
	return out
}
