// Package runtime implements the node scheduler: the single-threaded
// event loop that demultiplexes inbound network messages, injected
// timer signals, and stdin EOF, generalizing the teacher's
// mcast.Unity.run/poll loop and the original's Runtime::run /
// receive_loop / send_loop thread topology onto the Maelstrom stdio
// wire instead of a group-transport.
package runtime

import (
	"errors"
	"fmt"
	"io"

	"github.com/jabolina/mael-node/internal/handler"
	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/metrics"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/rpc"
)

// Workload is the contract every binary under cmd/ implements. Init
// runs once, synchronously, after the handshake and before any other
// event is dispatched; Step runs for every subsequent message that
// isn't consumed as a pending-RPC reply.
type Workload interface {
	Init(ctx Context, nodeID string, nodeIDs []string) error
	Step(ctx Context, msg proto.Message) error
}

// Runtime owns the event bus and drives the scheduler loop. Zero value
// is not usable; build with New.
type Runtime struct {
	log     logging.Logger
	metrics *metrics.Set
	invoker Invoker

	handlers *handler.Registry
	pending  *rpc.Table

	inbound  chan Event
	outbound chan any

	reader *proto.LineReader
	writer *proto.LineWriter

	workload Workload
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

func WithLogger(l logging.Logger) Option { return func(r *Runtime) { r.log = l } }
func WithInvoker(i Invoker) Option       { return func(r *Runtime) { r.invoker = i } }
func WithHandlers(reg *handler.Registry) Option {
	return func(r *Runtime) { r.handlers = reg }
}

// WithPendingTable substitutes a pre-built pending-RPC table, letting a
// caller construct RPC clients (internal/linkv) bound to that table
// before the Runtime itself exists.
func WithPendingTable(t *rpc.Table) Option {
	return func(r *Runtime) { r.pending = t }
}

// New builds a Runtime reading from r and writing to w. Buffering on
// the event bus matches the teacher's unbounded-but-finite channel
// sizing: 64 slots is enough to absorb a burst without backpressuring
// the reader goroutine mid-scan.
func New(workload Workload, r io.Reader, w io.Writer, opts ...Option) *Runtime {
	rt := &Runtime{
		log:      logging.Noop{},
		invoker:  GoInvoker{},
		handlers: handler.NewRegistry(),
		pending:  rpc.NewTable(),
		inbound:  make(chan Event, 64),
		outbound: make(chan any, 64),
		reader:   proto.NewLineReader(r),
		writer:   proto.NewLineWriter(w),
		workload: workload,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Pending exposes the pending-RPC table so workloads (and the lin-kv
// collaborator) can register continuations before sending an RPC.
func (rt *Runtime) Pending() *rpc.Table { return rt.pending }

// Handlers exposes the extension handler registry so a caller holding
// the Runtime can register handlers for foreign payload families (such
// as lin-kv replies) before the scheduler starts dispatching.
func (rt *Runtime) Handlers() *handler.Registry { return rt.handlers }

// Run performs the init handshake, starts the reader/writer goroutines,
// and blocks in the dispatch loop until stdin is exhausted. Errors
// returned by the workload's Step are logged, not returned.
func (rt *Runtime) Run() error {
	ctx, err := rt.handshake()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	rt.invoker.Spawn(rt.runReader)
	rt.invoker.Spawn(rt.runWriter)

	return rt.dispatch(ctx)
}

// handshake reads exactly one line, expecting an init message, replies
// with init_ok, and constructs the Context every subsequent call uses.
// This mirrors the original's init_node: the protocol guarantees init
// is always the first message and arrives exactly once.
func (rt *Runtime) handshake() (Context, error) {
	msg, err := rt.reader.ReadMessage()
	if err != nil {
		return Context{}, fmt.Errorf("read init message: %w", err)
	}

	var init proto.Init
	if err := proto.DecodeInto(msg.Body, &init); err != nil {
		return Context{}, fmt.Errorf("decode init body: %w", err)
	}
	if init.Type != "init" {
		return Context{}, fmt.Errorf("expected init message, got %q", init.Type)
	}

	m := metrics.NewSet(init.NodeID)
	rt.metrics = m

	ctx := NewContext(init.NodeID, init.NodeIDs, rt.outbound, rt.inbound, m)

	if err := rt.workload.Init(ctx, init.NodeID, init.NodeIDs); err != nil {
		return Context{}, fmt.Errorf("workload init: %w", err)
	}

	reply, err := ctx.ConstructReply(msg, proto.InitOk{Type: "init_ok"})
	if err != nil {
		return Context{}, fmt.Errorf("build init_ok: %w", err)
	}
	if err := rt.writer.WriteValue(reply); err != nil {
		return Context{}, fmt.Errorf("write init_ok: %w", err)
	}

	rt.log.Infof("node %s initialized with %d peers", init.NodeID, len(init.NodeIDs))
	return ctx, nil
}

// runReader pumps stdin into the inbound event bus until EOF, matching
// the teacher's consume loop shape but over line-delimited JSON instead
// of a relt.Relt consumer channel.
func (rt *Runtime) runReader() {
	for {
		msg, err := rt.reader.ReadMessage()
		if errors.Is(err, io.EOF) {
			rt.inbound <- EOFEvent()
			return
		}
		if err != nil {
			rt.log.Errorf("read message: %v", err)
			continue
		}
		if rt.metrics != nil {
			rt.metrics.MessagesReceived.Inc()
		}
		rt.inbound <- MessageEvent(msg)
	}
}

// runWriter pumps the outbound channel to stdout. It exits when the
// channel is closed during shutdown.
func (rt *Runtime) runWriter() {
	for v := range rt.outbound {
		if err := rt.writer.WriteValue(v); err != nil {
			rt.log.Errorf("write message: %v", err)
		}
	}
}

// dispatch is the single-threaded scheduler: every event is handled to
// completion before the next is read off the bus, so workload Step
// implementations never need their own locking.
func (rt *Runtime) dispatch(ctx Context) error {
	for ev := range rt.inbound {
		switch ev.Kind {
		case KindEOF:
			if closer, ok := rt.workload.(Closer); ok {
				if err := closer.Close(); err != nil {
					rt.log.Warnf("workload close: %v", err)
				}
			}
			close(rt.outbound)
			return nil

		case KindInjected:
			var err error
			if stepper, ok := rt.workload.(InjectedStepper); ok {
				err = stepper.StepInjected(ctx, ev.Injected)
			} else {
				err = rt.workload.Step(ctx, proto.Message{})
			}
			if err != nil {
				rt.log.Warnf("injected step error: %v", err)
			}

		case KindMessage:
			rt.dispatchMessage(ctx, ev.Message)
		}
	}
	return nil
}

// dispatchMessage routes a reply to its pending-RPC continuation when
// in_reply_to matches an outstanding call; otherwise it is new work and
// is handed to the workload's Step. If Step reports it does not
// recognize the payload, the extension handler registry gets a
// speculative shot at it before the message is counted as dropped.
func (rt *Runtime) dispatchMessage(ctx Context, msg proto.Message) {
	body, err := proto.DecodeBody(msg.Body)
	if err != nil {
		rt.log.Warnf("malformed body from %s: %v", msg.Src, err)
		if rt.metrics != nil {
			rt.metrics.MessagesDropped.Inc()
		}
		return
	}

	if body.IsReply() {
		status, handled := rt.pending.Resolve(*body.InReplyTo, msg)
		if rt.metrics != nil {
			rt.metrics.PendingRPCTableSize.Set(float64(rt.pending.Len()))
		}
		if handled {
			if status == rpc.MoreWork {
				rt.log.Debugf("callback for %d expects more replies", *body.InReplyTo)
			}
			return
		}
	}

	err = rt.workload.Step(ctx, msg)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrNoHandler) {
		rt.log.Errorf("step error handling %s from %s: %v", body.Type, msg.Src, err)
		return
	}

	if rt.handlers.CanHandle(msg.Body) {
		if err := rt.handlers.Step(msg.Body, &ctx); err != nil {
			rt.log.Warnf("extension handler error: %v", err)
		}
		return
	}

	rt.log.Warnf("no handler for %s from %s", body.Type, msg.Src)
	if rt.metrics != nil {
		rt.metrics.MessagesDropped.Inc()
	}
}

// InjectedStepper is an optional interface a Workload implements to
// receive the actual injected signal value rather than an empty
// Message; workloads with more than one kind of timer signal (the
// kafka-log workload's gossip tick and diagnostic tick) need this to
// tell them apart.
type InjectedStepper interface {
	StepInjected(ctx Context, signal any) error
}

// Closer is an optional interface a Workload can implement to release
// background resources (gossip ticker goroutines) when the scheduler
// observes stdin EOF.
type Closer interface {
	Close() error
}

// ErrNoHandler is returned by a workload's Step to signal that a
// message type fell outside anything it recognizes, letting the
// scheduler account for it distinctly from a genuine processing error.
var ErrNoHandler = errors.New("no handler for message type")
