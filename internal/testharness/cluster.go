// Package testharness generalizes the teacher's in-memory
// UnityCluster/TestInvoker test fixture (test/testing.go in the
// pre-transformation tree) from a group-multicast cluster of Peers
// wired by channels into a cluster of stdio nodes wired by io.Pipe: one
// pipe per node for its simulated stdin, one per node for its simulated
// stdout, with a router goroutine per node that parses each outbound
// envelope and delivers it either to another node's simulated stdin or
// to the test's own client inbox, exactly mirroring how a real
// Maelstrom harness demultiplexes a node's stdout across the cluster.
package testharness

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

// ClientID is the address the harness uses for itself when sending
// requests into the cluster and receiving replies back out, matching
// the single-letter client id ("c") every Maelstrom workload test uses.
const ClientID = "c"

// WaitGroupInvoker is a runtime.Invoker that tracks every spawned
// goroutine, generalizing the teacher's TestInvoker so tests can assert
// (via goleak or an explicit Wait) that a node's background gossip
// ticker actually exits after EOF instead of leaking.
type WaitGroupInvoker struct {
	wg sync.WaitGroup
}

func (w *WaitGroupInvoker) Spawn(f func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		f()
	}()
}

// Wait blocks until every goroutine this invoker spawned has returned.
func (w *WaitGroupInvoker) Wait() { w.wg.Wait() }

type node struct {
	id      string
	in      *io.PipeWriter
	out     *io.PipeWriter
	invoker *WaitGroupInvoker
	rt      *runtime.Runtime
	done    chan error
}

// Cluster wires N runtime.Runtime instances together in-process,
// routing each node's outbound envelopes to either a peer's simulated
// stdin or the test's client inbox depending on the envelope's dest.
type Cluster struct {
	t       *testing.T
	mu      sync.Mutex
	nodes   map[string]*node
	replies chan proto.Message
}

// Factory builds one node's Workload, given the node id and the
// invoker the harness wants that workload's background goroutines
// (gossip tickers) spawned through, so Shutdown can wait on them.
type Factory func(id string, invoker runtime.Invoker) runtime.Workload

// New builds and starts a Cluster of one node per id in ids, each
// constructed by factory.
func New(t *testing.T, ids []string, factory Factory) *Cluster {
	t.Helper()

	c := &Cluster{
		t:       t,
		nodes:   make(map[string]*node, len(ids)),
		replies: make(chan proto.Message, 4096),
	}

	for _, id := range ids {
		pr, pw := io.Pipe()
		sr, sw := io.Pipe()

		invoker := &WaitGroupInvoker{}
		wl := factory(id, invoker)

		rt := runtime.New(wl, pr, sw, runtime.WithInvoker(invoker))
		n := &node{id: id, in: pw, out: sw, invoker: invoker, rt: rt, done: make(chan error, 1)}
		c.nodes[id] = n

		go func() { n.done <- rt.Run() }()
		go c.route(id, sr)
	}

	for _, id := range ids {
		c.sendInit(id, ids)
	}

	return c
}

func (c *Cluster) sendInit(id string, allIDs []string) {
	body := map[string]any{
		"type":     "init",
		"msg_id":   0,
		"node_id":  id,
		"node_ids": allIDs,
	}
	c.writeTo(id, proto.Message{Src: ClientID, Dst: id, Body: mustMarshal(body)})
	// Drain the init_ok reply so it doesn't sit in the replies channel
	// ahead of real test traffic.
	c.RecvReply(2 * time.Second)
}

// route reads every line a node writes to its simulated stdout and
// forwards it either to a peer's simulated stdin (inter-node traffic:
// gossip, admin.gossip, lin-kv if ever addressed node-to-node) or to
// the client's reply inbox.
func (c *Cluster) route(_ string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		var msg proto.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.t.Logf("testharness: malformed outbound line: %v", err)
			continue
		}

		c.mu.Lock()
		dst, isNode := c.nodes[msg.Dst]
		c.mu.Unlock()

		if isNode {
			if _, err := dst.in.Write(append(line, '\n')); err != nil {
				c.t.Logf("testharness: deliver to %s failed: %v", msg.Dst, err)
			}
			continue
		}
		c.replies <- msg
	}
}

func (c *Cluster) writeTo(id string, msg proto.Message) {
	c.mu.Lock()
	n, ok := c.nodes[id]
	c.mu.Unlock()
	if !ok {
		c.t.Fatalf("testharness: no such node %s", id)
	}
	line, err := json.Marshal(msg)
	if err != nil {
		c.t.Fatalf("testharness: marshal client message: %v", err)
	}
	if _, err := n.in.Write(append(line, '\n')); err != nil {
		c.t.Fatalf("testharness: write to %s: %v", id, err)
	}
}

// Send delivers a client request to node id with the caller-supplied
// msgID, so reply correlation in the test stays explicit.
func (c *Cluster) Send(id string, msgID uint64, body map[string]any) {
	merged := make(map[string]any, len(body)+1)
	for k, v := range body {
		merged[k] = v
	}
	merged["msg_id"] = msgID
	c.writeTo(id, proto.Message{Src: ClientID, Dst: id, Body: mustMarshal(merged)})
}

// RecvReply blocks for up to timeout for the next envelope addressed to
// the client, returning ok=false on timeout.
func (c *Cluster) RecvReply(timeout time.Duration) (proto.Message, bool) {
	select {
	case msg := <-c.replies:
		return msg, true
	case <-time.After(timeout):
		return proto.Message{}, false
	}
}

// Shutdown closes every node's simulated stdin (EOF), waits for each
// Runtime.Run to return, and waits for every goroutine each node's
// invoker spawned to finish -- the shape a goleak.VerifyNone check
// needs to avoid flagging a gossip ticker that outlives the test.
func (c *Cluster) Shutdown() {
	c.mu.Lock()
	nodes := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	for _, n := range nodes {
		_ = n.in.Close()
	}
	for _, n := range nodes {
		select {
		case err := <-n.done:
			if err != nil {
				c.t.Logf("testharness: node %s exited with error: %v", n.id, err)
			}
		case <-time.After(5 * time.Second):
			c.t.Errorf("testharness: node %s did not shut down in time", n.id)
		}
		n.invoker.Wait()
		// Runtime's writer goroutine never closes its stdout; in
		// production that's os.Stdout, left open for the process
		// lifetime. Here it is this node's pipe, so the harness closes
		// it once every writer goroutine has exited, which unblocks
		// this node's route() goroutine's pending Read with a clean EOF.
		_ = n.out.Close()
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testharness: marshal: %v", err))
	}
	return b
}
