// Package linkv talks to the optional "lin-kv" service node the
// Maelstrom harness can inject: a linearizable key/value store
// reachable only by RPC. Every Read/Write/Cas call registers its own
// continuation directly in the scheduler's pending-RPC table, exactly
// like the original's src/rpc/lin_kv.rs LinKv collaborator, generalized
// off one fixed workload onto any caller that wants a linearizable CAS.
// Client additionally implements handler.Handler so a caller that
// registers it via runtime.WithHandlers gets a safety net for lin-kv
// replies whose pending-RPC entry is gone by the time they arrive (a
// stray duplicate) instead of those being logged as NoHandler once the
// workload's own Step rejects them.
package linkv

import (
	"encoding/json"
	"fmt"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/rpc"
	"github.com/jabolina/mael-node/internal/runtime"
)

const ServiceNode = "lin-kv"

// ReadPayload/WritePayload/CasPayload mirror the lin-kv service's wire
// contract exactly (Maelstrom's built-in linearizable-kv workload).
type ReadPayload struct {
	Type string `json:"type"`
	Key  any    `json:"key"`
}

type ReadOkPayload struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type WritePayload struct {
	Type  string `json:"type"`
	Key   any    `json:"key"`
	Value any    `json:"value"`
}

type CasPayload struct {
	Type               string `json:"type"`
	Key                any    `json:"key"`
	From               any    `json:"from"`
	To                 any    `json:"to"`
	CreateIfNotExists   bool   `json:"create_if_not_exists,omitempty"`
}

// Client issues lin-kv RPCs, registering a continuation in the
// scheduler's pending-RPC table for each one.
type Client struct {
	pending *rpc.Table
	log     logging.Logger
}

func NewClient(pending *rpc.Table, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop{}
	}
	return &Client{pending: pending, log: log}
}

// Read issues a read and invokes done with the decoded value, or an
// error if the reply carries a Maelstrom error body.
func (c *Client) Read(ctx runtime.Context, key any, done func(value any, err error)) error {
	msg, err := ctx.Builder().Dst(ServiceNode).Payload(ReadPayload{Type: "read", Key: key}).WithMsgID().Build()
	if err != nil {
		return fmt.Errorf("build lin-kv read: %w", err)
	}
	c.registerSingleShot(msg, func(reply proto.Message) error {
		if errBody, ok := decodeError(reply.Body); ok {
			done(nil, fmt.Errorf("lin-kv read error %d: %s", errBody.Code, errBody.Text))
			return nil
		}
		var ok2 ReadOkPayload
		if err := proto.DecodeInto(reply.Body, &ok2); err != nil {
			return fmt.Errorf("decode lin-kv read_ok: %w", err)
		}
		done(ok2.Value, nil)
		return nil
	})
	return ctx.Send(msg)
}

// Write issues an unconditional write; done is invoked once acked.
func (c *Client) Write(ctx runtime.Context, key, value any, done func(err error)) error {
	msg, err := ctx.Builder().Dst(ServiceNode).Payload(WritePayload{Type: "write", Key: key, Value: value}).WithMsgID().Build()
	if err != nil {
		return fmt.Errorf("build lin-kv write: %w", err)
	}
	c.registerSingleShot(msg, func(reply proto.Message) error {
		if errBody, ok := decodeError(reply.Body); ok {
			done(fmt.Errorf("lin-kv write error %d: %s", errBody.Code, errBody.Text))
			return nil
		}
		done(nil)
		return nil
	})
	return ctx.Send(msg)
}

// Cas issues a compare-and-swap; done receives nil on success, or the
// decoded Maelstrom error (precondition-failed on a mismatch,
// key-does-not-exist unless createIfNotExists was set).
func (c *Client) Cas(ctx runtime.Context, key, from, to any, createIfNotExists bool, done func(err error)) error {
	msg, err := ctx.Builder().Dst(ServiceNode).Payload(CasPayload{
		Type:              "cas",
		Key:               key,
		From:              from,
		To:                to,
		CreateIfNotExists: createIfNotExists,
	}).WithMsgID().Build()
	if err != nil {
		return fmt.Errorf("build lin-kv cas: %w", err)
	}
	c.registerSingleShot(msg, func(reply proto.Message) error {
		if errBody, ok := decodeError(reply.Body); ok {
			done(fmt.Errorf("lin-kv cas error %d: %s", errBody.Code, errBody.Text))
			return nil
		}
		done(nil)
		return nil
	})
	return ctx.Send(msg)
}

func (c *Client) registerSingleShot(msg proto.Message, handle func(proto.Message) error) {
	body, err := proto.DecodeBody(msg.Body)
	if err != nil || body.MsgID == nil {
		return
	}
	c.pending.Register(*body.MsgID, msg.Dst, func(reply proto.Message) rpc.Status {
		_ = handle(reply)
		return rpc.Finished
	})
}

func decodeError(raw json.RawMessage) (proto.ErrorBody, bool) {
	var e proto.ErrorBody
	if err := json.Unmarshal(raw, &e); err != nil || e.Type != "error" {
		return proto.ErrorBody{}, false
	}
	return e, true
}

// CanHandle/Step make Client usable directly as a handler.Handler.
// The runtime only ever reaches this path for a lin-kv-shaped message
// that didn't resolve against the pending-RPC table (Resolve already
// claims anything with a live, dst-matching entry), so by the time
// Step runs here there is nothing left to correlate it with -- it is
// logged and dropped rather than mistaken for workload traffic.
func (c *Client) CanHandle(raw json.RawMessage) bool {
	body, err := proto.DecodeBody(raw)
	if err != nil {
		return false
	}
	switch body.Type {
	case "read_ok", "write_ok", "cas_ok", "error":
		return true
	default:
		return false
	}
}

func (c *Client) Step(raw json.RawMessage, _ any) error {
	body, err := proto.DecodeBody(raw)
	if err != nil {
		return fmt.Errorf("decode stray lin-kv reply: %w", err)
	}
	var inReplyTo uint64
	if body.InReplyTo != nil {
		inReplyTo = *body.InReplyTo
	}
	c.log.Debugf("dropping stray lin-kv %s reply (in_reply_to=%d): no matching pending call", body.Type, inReplyTo)
	return nil
}
