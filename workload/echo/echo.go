// Package echo implements the echo workload: reply to every echo
// message with an echo_ok carrying the same payload back. The simplest
// possible workload, included as the baseline exercise of the runtime
// scheduler and Context plumbing.
package echo

import (
	"fmt"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

type echoPayload struct {
	Type string `json:"type"`
	Echo string `json:"echo"`
}

type echoOkPayload struct {
	Type string `json:"type"`
	Echo string `json:"echo"`
}

// Node is the echo workload's state -- there isn't any beyond the
// logger, since every request is handled independently.
type Node struct {
	log logging.Logger
}

func New(log logging.Logger) *Node {
	if log == nil {
		log = logging.Noop{}
	}
	return &Node{log: log}
}

func (n *Node) Init(_ runtime.Context, nodeID string, nodeIDs []string) error {
	n.log.Infof("echo node %s ready with peers %v", nodeID, nodeIDs)
	return nil
}

func (n *Node) Step(ctx runtime.Context, msg proto.Message) error {
	body, err := proto.DecodeBody(msg.Body)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if body.Type != "echo" {
		return runtime.ErrNoHandler
	}

	var payload echoPayload
	if err := proto.DecodeInto(msg.Body, &payload); err != nil {
		return fmt.Errorf("decode echo payload: %w", err)
	}

	reply, err := ctx.ConstructReply(msg, echoOkPayload{Type: "echo_ok", Echo: payload.Echo})
	if err != nil {
		return fmt.Errorf("build echo_ok: %w", err)
	}
	if err := ctx.Send(reply); err != nil {
		return fmt.Errorf("send echo_ok: %w", err)
	}
	return nil
}
