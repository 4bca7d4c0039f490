// Package broadcast implements the broadcast workload: accept a
// message, propagate it cluster-wide via anti-entropy gossip (not by
// re-broadcasting synchronously to every peer on receipt), and serve
// read requests from the locally converged set. Topology messages are
// acknowledged but otherwise ignored -- the gossip engine's own
// randomized neighborhood selection decides who talks to whom,
// independent of whatever topology the harness suggests.
package broadcast

import (
	"fmt"
	"sort"

	"github.com/jabolina/mael-node/internal/crdt"
	"github.com/jabolina/mael-node/internal/gossip"
	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

type broadcastPayload struct {
	Type    string `json:"type"`
	Message int    `json:"message"`
}

type broadcastOkPayload struct {
	Type string `json:"type"`
}

type readPayload struct {
	Type string `json:"type"`
}

type readOkPayload struct {
	Type     string `json:"type"`
	Messages []int  `json:"messages"`
}

type topologyPayload struct {
	Type     string              `json:"type"`
	Topology map[string][]string `json:"topology"`
}

type topologyOkPayload struct {
	Type string `json:"type"`
}

type gossipPayload struct {
	Type        string `json:"type"`
	Diff        string `json:"diff"`
	StateVector string `json:"state_vector"`
}

// tickSignal is the injected event the gossip ticker wakes the
// scheduler with.
type tickSignal struct{}

type Node struct {
	log     logging.Logger
	invoker runtime.Invoker

	set    *crdt.ORSet[int]
	engine *gossip.Engine

	stop chan struct{}
}

func New(log logging.Logger, invoker runtime.Invoker) *Node {
	if log == nil {
		log = logging.Noop{}
	}
	if invoker == nil {
		invoker = runtime.GoInvoker{}
	}
	return &Node{log: log, invoker: invoker, stop: make(chan struct{})}
}

func (n *Node) Init(ctx runtime.Context, nodeID string, nodeIDs []string) error {
	n.set = crdt.NewORSet[int](nodeID)
	n.engine = gossip.New(n.set, &sender{ctx: ctx}, n.log, nodeID, nodeIDs, seedFor(nodeID))

	n.invoker.Spawn(func() {
		gossip.RunTicker(gossip.DefaultInterval, n.stop, func() {
			_ = ctx.Inject(tickSignal{})
		})
	})

	n.log.Infof("broadcast node %s ready with peers %v", nodeID, nodeIDs)
	return nil
}

func (n *Node) Close() error {
	close(n.stop)
	return nil
}

func (n *Node) StepInjected(_ runtime.Context, signal any) error {
	if _, ok := signal.(tickSignal); ok {
		n.engine.Tick()
	}
	return nil
}

func (n *Node) Step(ctx runtime.Context, msg proto.Message) error {
	body, err := proto.DecodeBody(msg.Body)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}

	switch body.Type {
	case "broadcast":
		return n.handleBroadcast(ctx, msg)
	case "read":
		return n.handleRead(ctx, msg)
	case "topology":
		return n.handleTopology(ctx, msg)
	case "gossip":
		return n.handleGossip(msg)
	default:
		return runtime.ErrNoHandler
	}
}

func (n *Node) handleBroadcast(ctx runtime.Context, msg proto.Message) error {
	var payload broadcastPayload
	if err := proto.DecodeInto(msg.Body, &payload); err != nil {
		return fmt.Errorf("decode broadcast payload: %w", err)
	}
	if err := n.set.Add(payload.Message); err != nil {
		return fmt.Errorf("add to set: %w", err)
	}
	reply, err := ctx.ConstructReply(msg, broadcastOkPayload{Type: "broadcast_ok"})
	if err != nil {
		return fmt.Errorf("build broadcast_ok: %w", err)
	}
	return ctx.Send(reply)
}

func (n *Node) handleRead(ctx runtime.Context, msg proto.Message) error {
	values := n.set.Values()
	sort.Ints(values)
	reply, err := ctx.ConstructReply(msg, readOkPayload{Type: "read_ok", Messages: values})
	if err != nil {
		return fmt.Errorf("build read_ok: %w", err)
	}
	return ctx.Send(reply)
}

func (n *Node) handleTopology(ctx runtime.Context, msg proto.Message) error {
	// Acknowledged but intentionally not consulted: the gossip engine's
	// own randomized neighborhood selection governs fan-out.
	reply, err := ctx.ConstructReply(msg, topologyOkPayload{Type: "topology_ok"})
	if err != nil {
		return fmt.Errorf("build topology_ok: %w", err)
	}
	return ctx.Send(reply)
}

func (n *Node) handleGossip(msg proto.Message) error {
	var payload gossipPayload
	if err := proto.DecodeInto(msg.Body, &payload); err != nil {
		return fmt.Errorf("decode gossip payload: %w", err)
	}
	return n.engine.HandleGossip(msg.Src, payload.Diff, payload.StateVector)
}

// sender adapts Context.Send to gossip.Sender's interface, building an
// explicit-destination, no-msg_id gossip message (fire-and-forget: a
// lost gossip round is simply caught by the next tick or the resend
// probability).
type sender struct {
	ctx runtime.Context
}

func (s *sender) SendGossip(peer string, diff, stateVector string) error {
	msg, err := s.ctx.Builder().Dst(peer).Payload(gossipPayload{
		Type:        "gossip",
		Diff:        diff,
		StateVector: stateVector,
	}).Build()
	if err != nil {
		return fmt.Errorf("build gossip message: %w", err)
	}
	return s.ctx.Send(msg)
}

// seedFor derives a stable per-node RNG seed from the node id so two
// runs of the same topology produce the same neighborhood selection
// sequence, which is convenient for reproducing a chaos run.
func seedFor(nodeID string) int64 {
	var h int64 = 1469598103934665603
	for _, b := range []byte(nodeID) {
		h ^= int64(b)
		h *= 1099511628211
	}
	return h
}
