package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/proto"
)

func newTestContext(t *testing.T) (Context, chan any, chan Event) {
	t.Helper()
	outbound := make(chan any, 16)
	inbound := make(chan Event, 16)
	ctx := NewContext("n1", []string{"n1", "n2"}, outbound, inbound, nil)
	return ctx, outbound, inbound
}

func TestContext_NextMsgIDIsMonotonicAndUnique(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		id := ctx.NextMsgID()
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestContext_ConstructReplySwapsSrcDstAndSetsInReplyTo(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	incoming := proto.Message{
		Src:  "c",
		Dst:  "n1",
		Body: json.RawMessage(`{"type":"echo","msg_id":7,"echo":"hi"}`),
	}
	reply, err := ctx.ConstructReply(incoming, map[string]any{"type": "echo_ok", "echo": "hi"})
	require.NoError(t, err)
	require.Equal(t, "n1", reply.Src)
	require.Equal(t, "c", reply.Dst)

	body, err := proto.DecodeBody(reply.Body)
	require.NoError(t, err)
	require.NotNil(t, body.InReplyTo)
	require.EqualValues(t, 7, *body.InReplyTo)
	require.NotNil(t, body.MsgID)
}

func TestContext_SendPushesToOutbound(t *testing.T) {
	ctx, outbound, _ := newTestContext(t)
	require.NoError(t, ctx.Send("hello"))
	require.Equal(t, "hello", <-outbound)
}

func TestContext_InjectPushesToInbound(t *testing.T) {
	ctx, _, inbound := newTestContext(t)
	require.NoError(t, ctx.Inject("tick"))
	ev := <-inbound
	require.Equal(t, KindInjected, ev.Kind)
	require.Equal(t, "tick", ev.Injected)
}

func TestContext_SendOnClosedChannelReturnsError(t *testing.T) {
	outbound := make(chan any)
	close(outbound)
	ctx := NewContext("n1", nil, outbound, make(chan Event), nil)
	err := ctx.Send("x")
	require.Error(t, err)
}

func TestContext_BuilderRequiresDstAndPayload(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	_, err := ctx.Builder().Payload(map[string]any{"type": "gossip"}).Build()
	require.Error(t, err)

	_, err = ctx.Builder().Dst("n2").Build()
	require.Error(t, err)

	msg, err := ctx.Builder().Dst("n2").Payload(map[string]any{"type": "gossip"}).Build()
	require.NoError(t, err)
	require.Equal(t, "n2", msg.Dst)
	body, err := proto.DecodeBody(msg.Body)
	require.NoError(t, err)
	require.Nil(t, body.MsgID)
}

func TestContext_BuilderWithMsgIDAttachesFreshID(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	msg, err := ctx.Builder().Dst("lin-kv").Payload(map[string]any{"type": "read", "key": "k"}).WithMsgID().Build()
	require.NoError(t, err)
	body, err := proto.DecodeBody(msg.Body)
	require.NoError(t, err)
	require.NotNil(t, body.MsgID)
}
