package kafkalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

type noopInvoker struct{}

func (noopInvoker) Spawn(f func()) {}

func newNode(t *testing.T, nodeID string, peers []string) (*Node, runtime.Context, chan any) {
	t.Helper()
	node := New(logging.Noop{}, noopInvoker{})
	outbound := make(chan any, 8)
	inbound := make(chan runtime.Event, 8)
	ctx := runtime.NewContext(nodeID, peers, outbound, inbound, nil)
	require.NoError(t, node.Init(ctx, nodeID, peers))
	return node, ctx, outbound
}

func TestKafkaLog_SendAssignsDenseIncreasingOffsets(t *testing.T) {
	node, ctx, outbound := newNode(t, "n1", []string{"n1"})

	send := func(msg string) uint64 {
		body := json.RawMessage(`{"type":"send","msg_id":1,"key":"k","msg":"` + msg + `"}`)
		require.NoError(t, node.Step(ctx, proto.Message{Src: "c", Dst: "n1", Body: body}))
		reply := (<-outbound).(proto.Message)
		var ok struct {
			Offset uint64 `json:"offset"`
		}
		require.NoError(t, proto.DecodeInto(reply.Body, &ok))
		return ok.Offset
	}

	require.EqualValues(t, 0, send("a"))
	require.EqualValues(t, 1, send("b"))
}

func TestKafkaLog_PollReturnsEntriesFromOffset(t *testing.T) {
	node, ctx, outbound := newNode(t, "n1", []string{"n1"})

	for _, m := range []string{"a", "b"} {
		body := json.RawMessage(`{"type":"send","msg_id":1,"key":"k","msg":"` + m + `"}`)
		require.NoError(t, node.Step(ctx, proto.Message{Src: "c", Dst: "n1", Body: body}))
		<-outbound
	}

	poll := proto.Message{Src: "c", Dst: "n1", Body: json.RawMessage(`{"type":"poll","msg_id":2,"offsets":{"k":0}}`)}
	require.NoError(t, node.Step(ctx, poll))
	reply := (<-outbound).(proto.Message)

	var ok struct {
		Msgs map[string][][2]any `json:"msgs"`
	}
	require.NoError(t, proto.DecodeInto(reply.Body, &ok))
	require.Len(t, ok.Msgs["k"], 2)
}

func TestKafkaLog_CommitAndListCommittedOffsets(t *testing.T) {
	node, ctx, outbound := newNode(t, "n1", []string{"n1"})

	commit := proto.Message{
		Src: "c", Dst: "n1",
		Body: json.RawMessage(`{"type":"commit_offsets","msg_id":1,"offsets":{"k":1}}`),
	}
	require.NoError(t, node.Step(ctx, commit))
	reply := (<-outbound).(proto.Message)
	body, err := proto.DecodeBody(reply.Body)
	require.NoError(t, err)
	require.Equal(t, "commit_offsets_ok", body.Type)

	list := proto.Message{
		Src: "c", Dst: "n1",
		Body: json.RawMessage(`{"type":"list_committed_offsets","msg_id":2,"keys":["k","unset"]}`),
	}
	require.NoError(t, node.Step(ctx, list))
	reply = (<-outbound).(proto.Message)

	var ok struct {
		Offsets map[string]uint64 `json:"offsets"`
	}
	require.NoError(t, proto.DecodeInto(reply.Body, &ok))
	require.EqualValues(t, 1, ok.Offsets["k"])
	require.EqualValues(t, 0, ok.Offsets["unset"])
}
