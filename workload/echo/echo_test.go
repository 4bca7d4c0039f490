package echo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

func newTestContext(outbound chan any) runtime.Context {
	inbound := make(chan runtime.Event, 4)
	return runtime.NewContext("n1", []string{"n1"}, outbound, inbound, nil)
}

func TestEcho_EchoesPayloadBack(t *testing.T) {
	node := New(logging.Noop{})
	require.NoError(t, node.Init(runtime.Context{}, "n1", []string{"n1"}))

	outbound := make(chan any, 1)
	ctx := newTestContext(outbound)

	msg := proto.Message{
		Src:  "c",
		Dst:  "n1",
		Body: json.RawMessage(`{"type":"echo","msg_id":1,"echo":"please echo 35"}`),
	}
	require.NoError(t, node.Step(ctx, msg))

	reply := (<-outbound).(proto.Message)
	require.Equal(t, "n1", reply.Src)
	require.Equal(t, "c", reply.Dst)

	var body struct {
		Type string `json:"type"`
		Echo string `json:"echo"`
	}
	require.NoError(t, proto.DecodeInto(reply.Body, &body))
	require.Equal(t, "echo_ok", body.Type)
	require.Equal(t, "please echo 35", body.Echo)
}

func TestEcho_UnknownTypeIsNoHandler(t *testing.T) {
	node := New(logging.Noop{})
	outbound := make(chan any, 1)
	ctx := newTestContext(outbound)
	msg := proto.Message{Src: "c", Dst: "n1", Body: json.RawMessage(`{"type":"something_else"}`)}
	require.ErrorIs(t, node.Step(ctx, msg), runtime.ErrNoHandler)
}
