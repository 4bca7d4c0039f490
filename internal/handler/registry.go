// Package handler implements the extension handler registry: a small,
// insertion-ordered set of handlers that get a speculative look at any
// inbound message the workload's own Step doesn't claim. This is how
// the lin-kv collaborator's stray replies get routed without forcing
// every workload's payload type to grow a variant for something
// foreign to its own domain. Grounded on the teacher's GMCast state-machine dispatch
// (pkg/mcast/protocol.go process/processGMCast), generalized from a
// fixed state machine into an open, registrable set, and on
// grafana-k6's direct use of tidwall/gjson for speculative field
// peeking inside its own test helpers.
package handler

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Handler is anything that can cheaply decide whether it owns a raw
// message body (via CanHandle, without committing to a full decode)
// and, if so, process it. ctx is always a *runtime.Context in
// practice; it is typed as `any` here so this package doesn't import
// runtime (which registers handlers and would otherwise create an
// import cycle) -- each Handler implementation type-asserts it back.
type Handler interface {
	CanHandle(raw json.RawMessage) bool
	Step(raw json.RawMessage, ctx any) error
}

// Registry holds handlers in registration order; the first handler
// that claims a message via CanHandle processes it.
type Registry struct {
	handlers []Handler
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a handler. Order matters: earlier handlers get
// first refusal.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

// CanHandle reports whether any registered handler claims raw.
func (r *Registry) CanHandle(raw json.RawMessage) bool {
	for _, h := range r.handlers {
		if h.CanHandle(raw) {
			return true
		}
	}
	return false
}

// Step hands raw to the first handler that claims it.
func (r *Registry) Step(raw json.RawMessage, ctx any) error {
	for _, h := range r.handlers {
		if h.CanHandle(raw) {
			return h.Step(raw, ctx)
		}
	}
	return nil
}

// TypeIs is a convenience CanHandle building block matching a body's
// "type" field without a full unmarshal.
func TypeIs(raw json.RawMessage, want string) bool {
	return gjson.GetBytes(raw, "type").String() == want
}

// HasField reports whether raw has a field at the given gjson path; a
// dotted path such as "admin.type" addresses a nested field.
func HasField(raw json.RawMessage, path string) bool {
	return gjson.GetBytes(raw, path).Exists()
}
