package runtime

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/rpc"
)

// recordingWorkload is a minimal Workload used to exercise the
// scheduler's dispatch rules without a real workload package.
type recordingWorkload struct {
	initNodeID string
	steps      []proto.Message
	replyType  string
}

func (w *recordingWorkload) Init(_ Context, nodeID string, _ []string) error {
	w.initNodeID = nodeID
	return nil
}

func (w *recordingWorkload) Step(ctx Context, msg proto.Message) error {
	w.steps = append(w.steps, msg)
	body, err := proto.DecodeBody(msg.Body)
	if err != nil {
		return err
	}
	if body.Type != "ping" {
		return ErrNoHandler
	}
	reply, err := ctx.ConstructReply(msg, map[string]any{"type": "pong"})
	if err != nil {
		return err
	}
	return ctx.Send(reply)
}

func readLines(t *testing.T, r *bufio.Scanner, n int) []proto.Message {
	t.Helper()
	var out []proto.Message
	for i := 0; i < n; i++ {
		require.True(t, r.Scan(), "expected line %d", i)
		var m proto.Message
		require.NoError(t, json.Unmarshal(r.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestRuntime_InitHandshakeThenDispatch(t *testing.T) {
	input := strings.NewReader(
		`{"src":"c","dest":"n1","body":{"type":"init","msg_id":0,"node_id":"n1","node_ids":["n1","n2"]}}` + "\n" +
			`{"src":"c","dest":"n1","body":{"type":"ping","msg_id":1}}` + "\n",
	)
	var output strings.Builder
	w := &recordingWorkload{}
	rt := New(w, input, &output)

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not finish before timeout")
	}

	require.Equal(t, "n1", w.initNodeID)
	require.Len(t, w.steps, 1)

	scanner := bufio.NewScanner(strings.NewReader(output.String()))
	msgs := readLines(t, scanner, 2)
	initOk, err := proto.DecodeBody(msgs[0].Body)
	require.NoError(t, err)
	require.Equal(t, "init_ok", initOk.Type)

	pong, err := proto.DecodeBody(msgs[1].Body)
	require.NoError(t, err)
	require.Equal(t, "pong", pong.Type)
}

func TestRuntime_FatalWhenFirstMessageIsNotInit(t *testing.T) {
	input := strings.NewReader(`{"src":"c","dest":"n1","body":{"type":"echo","msg_id":0}}` + "\n")
	var output strings.Builder
	rt := New(&recordingWorkload{}, input, &output)
	err := rt.Run()
	require.Error(t, err)
}

func TestRuntime_PendingRPCReplyBypassesWorkloadStep(t *testing.T) {
	input := strings.NewReader(
		`{"src":"c","dest":"n1","body":{"type":"init","msg_id":0,"node_id":"n1","node_ids":["n1"]}}` + "\n" +
			`{"src":"n2","dest":"n1","body":{"type":"gossip_ok","in_reply_to":1}}` + "\n",
	)
	var output strings.Builder
	w := &recordingWorkload{}
	rt := New(w, input, &output)

	invoked := make(chan proto.Message, 1)
	rt.Pending().Register(1, "n2", func(reply proto.Message) rpc.Status {
		invoked <- reply
		return rpc.Finished
	})

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not finish before timeout")
	}

	select {
	case reply := <-invoked:
		require.Equal(t, "n2", reply.Src)
	default:
		t.Fatal("pending callback was never invoked")
	}
	require.Empty(t, w.steps, "reply should be consumed by the pending-RPC table, not Step")
}

func TestRuntime_NoHandlerFallsThroughWithoutError(t *testing.T) {
	input := strings.NewReader(
		`{"src":"c","dest":"n1","body":{"type":"init","msg_id":0,"node_id":"n1","node_ids":["n1"]}}` + "\n" +
			`{"src":"c","dest":"n1","body":{"type":"unknown_type","msg_id":2}}` + "\n",
	)
	var output strings.Builder
	w := &recordingWorkload{}
	rt := New(w, input, &output)

	done := make(chan error, 1)
	go func() { done <- rt.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runtime did not finish before timeout")
	}
	require.Len(t, w.steps, 1)
}
