// Package counter implements the g-counter workload: add deltas to a
// per-node slot of a grow-only counter, replicate slots via gossip, and
// serve reads as the sum across every slot.
package counter

import (
	"fmt"

	"github.com/jabolina/mael-node/internal/crdt"
	"github.com/jabolina/mael-node/internal/gossip"
	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

type addPayload struct {
	Type  string `json:"type"`
	Delta int64  `json:"delta"`
}

type addOkPayload struct {
	Type string `json:"type"`
}

type readPayload struct {
	Type string `json:"type"`
}

type readOkPayload struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
}

type gossipPayload struct {
	Type        string `json:"type"`
	Diff        string `json:"diff"`
	StateVector string `json:"state_vector"`
}

type tickSignal struct{}

type Node struct {
	log     logging.Logger
	invoker runtime.Invoker

	counter *crdt.GCounter
	engine  *gossip.Engine

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
	n.counter = crdt.NewGCounter(nodeID)
	n.engine = gossip.New(n.counter, &sender{ctx: ctx}, n.log, nodeID, nodeIDs, seedFor(nodeID))

	n.invoker.Spawn(func() {
		gossip.RunTicker(gossip.DefaultInterval, n.stop, func() {
			_ = ctx.Inject(tickSignal{})
		})
	})

	n.log.Infof("g-counter node %s ready with peers %v", nodeID, nodeIDs)
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
	case "add":
		return n.handleAdd(ctx, msg)
	case "read":
		return n.handleRead(ctx, msg)
	case "gossip":
		return n.handleGossip(msg)
	default:
		return runtime.ErrNoHandler
	}
}

func (n *Node) handleAdd(ctx runtime.Context, msg proto.Message) error {
	var payload addPayload
	if err := proto.DecodeInto(msg.Body, &payload); err != nil {
		return fmt.Errorf("decode add payload: %w", err)
	}
	n.counter.Add(payload.Delta)
	reply, err := ctx.ConstructReply(msg, addOkPayload{Type: "add_ok"})
	if err != nil {
		return fmt.Errorf("build add_ok: %w", err)
	}
	return ctx.Send(reply)
}

func (n *Node) handleRead(ctx runtime.Context, msg proto.Message) error {
	reply, err := ctx.ConstructReply(msg, readOkPayload{Type: "read_ok", Value: n.counter.Value()})
	if err != nil {
		return fmt.Errorf("build read_ok: %w", err)
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

func seedFor(nodeID string) int64 {
	var h int64 = 1469598103934665603
	for _, b := range []byte(nodeID) {
		h ^= int64(b)
		h *= 1099511628211
	}
	return h
}
