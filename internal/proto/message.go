// Package proto defines the wire envelope exchanged with the Maelstrom
// harness over stdin/stdout: one JSON object per line, src/dest/body.
package proto

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope wrapping every line on the wire. The body is
// kept as raw JSON until a workload narrows it into its own payload type;
// this mirrors the teacher's raw-to-typed two-step (types.Message ->
// typed Payload) without requiring a type parameter per call site.
type Message struct {
	Src  string          `json:"src"`
	Dst  string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s->%s: %s", m.Src, m.Dst, string(m.Body))
}

// Body is the envelope's body prefix shared by every payload variant.
// Payload-specific fields are inlined alongside these via struct
// embedding on the workload side (json.Marshal flattens embedded structs
// automatically; RawMessage-based decode reads this prefix then
// re-decodes into the richer type).
type Body struct {
	Type      string  `json:"type"`
	MsgID     *uint64 `json:"msg_id,omitempty"`
	InReplyTo *uint64 `json:"in_reply_to,omitempty"`
}

// DecodeBody extracts just the shared prefix fields from a message body,
// leaving the caller to re-unmarshal into a richer payload type for the
// variant-specific fields.
func DecodeBody(raw json.RawMessage) (Body, error) {
	var b Body
	if err := json.Unmarshal(raw, &b); err != nil {
		return Body{}, fmt.Errorf("decode body prefix: %w", err)
	}
	return b, nil
}

// IsReply reports whether a body prefix marks this message as a reply to
// a previously sent message.
func (b Body) IsReply() bool {
	return b.InReplyTo != nil
}

// DecodeInto unmarshals a message body into any richer payload type,
// for call sites that already know which variant to expect (the init
// handshake, a workload's own Step after checking Body.Type).
func DecodeInto(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Init is the first message's payload, establishing node identity and
// cluster membership.
type Init struct {
	Type    string   `json:"type"`
	MsgID   uint64   `json:"msg_id,omitempty"`
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// InitOk is the reply to Init.
type InitOk struct {
	Type      string `json:"type"`
	InReplyTo uint64 `json:"in_reply_to"`
	MsgID     uint64 `json:"msg_id,omitempty"`
}

// ErrorBody is the Maelstrom error payload shape. The workbench decodes
// it from lin-kv collaborator replies and never emits one itself.
type ErrorBody struct {
	Type      string `json:"type"`
	InReplyTo uint64 `json:"in_reply_to"`
	Code      int    `json:"code"`
	Text      string `json:"text"`
}

// Maelstrom-reserved error codes relevant to the lin-kv collaborator
// contract (the full Maelstrom error-code table is wider; only the
// subset this workbench can receive or emit is reproduced here).
const (
	ErrCodeTimeout      = 0
	ErrCodeNotSupported = 10
	ErrCodeKeyDoesNotExist = 20
	ErrCodePreconditionFailed = 22
	ErrCodeCrash        = 13
)
