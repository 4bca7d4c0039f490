package runtime

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/jabolina/mael-node/internal/metrics"
	"github.com/jabolina/mael-node/internal/proto"
)

// Context is the cheap, clonable handle distributed to workload and
// timer code, generalizing the teacher's Context type (itself Arc'd
// Node identity + membership, a Sender for outbound messages, a Sender
// for injected events, and an atomic message-id counter). Every method
// is safe to call from any goroutine.
type Context struct {
	nodeID    string
	neighbors []string

	outbound chan<- any
	inbound  chan<- Event

	msgID *atomic.Uint64

	metrics *metrics.Set
}

// NewContext builds a Context over the given outbound/inbound channels.
// msgID is shared (not copied) across every clone so that ids allocated
// from any clone remain globally unique for the process.
func NewContext(nodeID string, neighbors []string, outbound chan<- any, inbound chan<- Event, m *metrics.Set) Context {
	return Context{
		nodeID:    nodeID,
		neighbors: neighbors,
		outbound:  outbound,
		inbound:   inbound,
		msgID:     &atomic.Uint64{},
		metrics:   m,
	}
}

// NodeID returns this node's identity, fixed at init.
func (c Context) NodeID() string { return c.nodeID }

// Neighbors returns the full cluster membership learned at init (not to
// be confused with the gossip engine's randomized neighborhood subset).
func (c Context) Neighbors() []string { return c.neighbors }

// NextMsgID atomically allocates the next outbound message id. Reuse is
// forbidden for the lifetime of the process.
func (c Context) NextMsgID() uint64 {
	return c.msgID.Add(1) - 1
}

// ErrChannelClosed is returned by Send/Inject when the corresponding
// channel has already been closed (scheduler shutdown).
type ErrChannelClosed struct {
	Channel string
}

func (e ErrChannelClosed) Error() string {
	return fmt.Sprintf("%s channel is closed", e.Channel)
}

// Send pushes a fully-built value onto the outbound channel. It never
// blocks beyond channel-full backpressure; it returns an error only if
// the channel has been closed by scheduler shutdown.
func (c Context) Send(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed{Channel: "outbound"}
		}
	}()
	c.outbound <- v
	if c.metrics != nil {
		c.metrics.MessagesSent.Inc()
	}
	return nil
}

// Inject pushes a timer/injected signal onto the inbound event bus,
// enabling background goroutines (the gossip ticker, workload-specific
// timers) to wake the scheduler without touching workload state
// directly.
func (c Context) Inject(signal any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed{Channel: "inbound"}
		}
	}()
	c.inbound <- InjectedEvent(signal)
	return nil
}

// ConstructReply swaps src/dst, sets in_reply_to to the incoming
// message's msg_id, allocates a fresh msg_id, and marshals payload into
// the body alongside those fields.
func (c Context) ConstructReply(incoming proto.Message, payload any) (proto.Message, error) {
	incomingBody, err := proto.DecodeBody(incoming.Body)
	if err != nil {
		return proto.Message{}, fmt.Errorf("decode incoming body for reply: %w", err)
	}

	merged, err := mergeBody(payload, incomingBody.MsgID, c.NextMsgID())
	if err != nil {
		return proto.Message{}, err
	}

	return proto.Message{
		Src:  incoming.Dst,
		Dst:  incoming.Src,
		Body: merged,
	}, nil
}

// Builder starts an open-form outbound message requiring an explicit
// destination and payload (used for gossip and lin-kv RPCs, which are
// not replies to anything).
func (c Context) Builder() *MessageBuilder {
	return &MessageBuilder{ctx: c}
}

// MessageBuilder is the explicit-destination counterpart to
// ConstructReply, mirroring the teacher/original's Message::builder.
type MessageBuilder struct {
	ctx        Context
	dst        string
	payload    any
	withMsgID  bool
	inReplyTo  *uint64
}

func (b *MessageBuilder) Dst(dst string) *MessageBuilder {
	b.dst = dst
	return b
}

func (b *MessageBuilder) Payload(payload any) *MessageBuilder {
	b.payload = payload
	return b
}

// WithMsgID allocates and attaches a fresh msg_id (set for RPC-style
// sends that expect a reply; omitted for fire-and-forget gossip).
func (b *MessageBuilder) WithMsgID() *MessageBuilder {
	b.withMsgID = true
	return b
}

func (b *MessageBuilder) Build() (proto.Message, error) {
	if b.dst == "" {
		return proto.Message{}, fmt.Errorf("message builder: dst is required")
	}
	if b.payload == nil {
		return proto.Message{}, fmt.Errorf("message builder: payload is required")
	}

	var msgID *uint64
	if b.withMsgID {
		id := b.ctx.NextMsgID()
		msgID = &id
	}

	body, err := mergeBody(b.payload, nil, 0)
	if err != nil {
		return proto.Message{}, err
	}
	if msgID != nil {
		body, err = attachMsgID(body, *msgID)
		if err != nil {
			return proto.Message{}, err
		}
	}

	return proto.Message{
		Src:  b.ctx.nodeID,
		Dst:  b.dst,
		Body: body,
	}, nil
}

// mergeBody flattens payload's own JSON fields together with msg_id /
// in_reply_to, matching the wire's "payload flattened onto body"
// contract (spec.md section 3). replyTo is nil for non-reply sends;
// freshID is attached as msg_id only when replyTo is set.
func mergeBody(payload any, replyTo *uint64, freshID uint64) (json.RawMessage, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, fmt.Errorf("flatten payload: %w", err)
	}
	if replyTo != nil {
		idBytes, _ := json.Marshal(*replyTo)
		fields["in_reply_to"] = idBytes
		msgIDBytes, _ := json.Marshal(freshID)
		fields["msg_id"] = msgIDBytes
	}
	return json.Marshal(fields)
}

func attachMsgID(body json.RawMessage, id uint64) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("attach msg_id: %w", err)
	}
	idBytes, _ := json.Marshal(id)
	fields["msg_id"] = idBytes
	return json.Marshal(fields)
}
