// Package rpc implements the pending-RPC continuation table: outbound
// messages that expect a reply register a callback keyed by the
// msg_id they send, and the scheduler resolves it against the
// in_reply_to field of whatever comes back. Grounded on the original's
// CallbackInfo/RpcCallback/CallbackStatus (src/bin/kafka.rs,
// src/rpc/lin_kv.rs), generalized off any single workload's payload
// type via `any`.
package rpc

import (
	"sync"

	"github.com/jabolina/mael-node/internal/proto"
)

// Status tells the scheduler whether a callback has fully consumed its
// RPC (Finished, entry removed) or still expects further replies on the
// same msg_id (MoreWork, entry kept).
type Status int

const (
	Finished Status = iota
	MoreWork
)

// Callback is invoked with the reply message once a pending call's
// in_reply_to matches. It returns the new status for the entry.
type Callback func(reply proto.Message) Status

// pendingCall is one outstanding RPC: the peer the original outbound
// request was sent to (recorded for correlation, spec.md §4.6) plus
// the continuation to invoke once a reply matches.
type pendingCall struct {
	dst string
	cb  Callback
}

// Table is a concurrency-safe registry of outstanding calls. Register
// is called from workload Step code and from continuations that
// Resolve invokes (lin-kv retries), all on the scheduler goroutine;
// the table still guards itself with a mutex rather than assuming
// single-writer access.
type Table struct {
	mu    sync.Mutex
	calls map[uint64]pendingCall
}

func NewTable() *Table {
	return &Table{calls: make(map[uint64]pendingCall)}
}

// Register associates msgID (the id the outbound request was sent
// with) with a callback to invoke when a reply arrives matching both
// in_reply_to==msgID and src==dst (the peer the request was addressed
// to, recorded here so a reply can't be attributed to the wrong peer).
func (t *Table) Register(msgID uint64, dst string, cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[msgID] = pendingCall{dst: dst, cb: cb}
}

// Resolve looks up msgID and, if its recorded dst matches reply.Src,
// invokes its callback with reply. Returns (status, true) if a
// matching callback was found, (_, false) otherwise -- the caller
// treats the latter as "not a recognized reply, fall through to normal
// dispatch", which also covers the case where an entry exists for
// msgID but the reply arrived from an unexpected peer.
func (t *Table) Resolve(msgID uint64, reply proto.Message) (Status, bool) {
	t.mu.Lock()
	entry, ok := t.calls[msgID]
	if !ok || entry.dst != reply.Src {
		t.mu.Unlock()
		return Finished, false
	}
	if entry.cb == nil {
		delete(t.calls, msgID)
		t.mu.Unlock()
		return Finished, true
	}
	t.mu.Unlock()

	status := entry.cb(reply)

	t.mu.Lock()
	defer t.mu.Unlock()
	if status == Finished {
		delete(t.calls, msgID)
	}
	return status, true
}

// Cancel removes a pending entry without invoking its callback, for a
// caller that gives up waiting on a reply.
func (t *Table) Cancel(msgID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, msgID)
}

// Len reports the number of outstanding calls, exported purely for the
// gauge in internal/metrics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
