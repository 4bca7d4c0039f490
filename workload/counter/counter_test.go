package counter

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/crdt"
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

func TestCounter_AddThenReadSumsOwnSlot(t *testing.T) {
	node, ctx, outbound := newNode(t, "n1", []string{"n1"})

	for i := 0; i < 2; i++ {
		msg := proto.Message{Src: "c", Dst: "n1", Body: json.RawMessage(`{"type":"add","msg_id":1,"delta":5}`)}
		require.NoError(t, node.Step(ctx, msg))
		reply := (<-outbound).(proto.Message)
		body, err := proto.DecodeBody(reply.Body)
		require.NoError(t, err)
		require.Equal(t, "add_ok", body.Type)
	}

	readMsg := proto.Message{Src: "c", Dst: "n1", Body: json.RawMessage(`{"type":"read","msg_id":2}`)}
	require.NoError(t, node.Step(ctx, readMsg))
	reply := (<-outbound).(proto.Message)

	var readOk struct {
		Value int64 `json:"value"`
	}
	require.NoError(t, proto.DecodeInto(reply.Body, &readOk))
	require.EqualValues(t, 10, readOk.Value)
}

func TestCounter_GossipMergesRemoteSlot(t *testing.T) {
	node, ctx, outbound := newNode(t, "n1", []string{"n1", "n2"})

	remote := crdt.NewGCounter("n2")
	remote.Add(4)
	diff, err := remote.EncodeDiff(crdt.StateVector{})
	require.NoError(t, err)
	svBytes, err := json.Marshal(remote.StateVector())
	require.NoError(t, err)

	gossipBody, err := json.Marshal(map[string]string{
		"type":         "gossip",
		"diff":         base64.RawURLEncoding.EncodeToString(diff),
		"state_vector": base64.RawURLEncoding.EncodeToString(svBytes),
	})
	require.NoError(t, err)

	require.NoError(t, node.Step(ctx, proto.Message{Src: "n2", Dst: "n1", Body: gossipBody}))

	readMsg := proto.Message{Src: "c", Dst: "n1", Body: json.RawMessage(`{"type":"read","msg_id":2}`)}
	require.NoError(t, node.Step(ctx, readMsg))
	reply := (<-outbound).(proto.Message)

	var readOk struct {
		Value int64 `json:"value"`
	}
	require.NoError(t, proto.DecodeInto(reply.Body, &readOk))
	require.EqualValues(t, 4, readOk.Value)
}
