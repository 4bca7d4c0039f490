// Package uniqueids implements the unique-ids workload: every
// generate request gets back an id guaranteed globally unique across
// the cluster without any coordination, by combining this node's own
// id with its own monotonic message counter.
package uniqueids

import (
	"fmt"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/proto"
	"github.com/jabolina/mael-node/internal/runtime"
)

type generatePayload struct {
	Type string `json:"type"`
}

type generateOkPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Node struct {
	log    logging.Logger
	nodeID string
}

func New(log logging.Logger) *Node {
	if log == nil {
		log = logging.Noop{}
	}
	return &Node{log: log}
}

func (n *Node) Init(_ runtime.Context, nodeID string, nodeIDs []string) error {
	n.nodeID = nodeID
	n.log.Infof("unique-ids node %s ready with peers %v", nodeID, nodeIDs)
	return nil
}

func (n *Node) Step(ctx runtime.Context, msg proto.Message) error {
	body, err := proto.DecodeBody(msg.Body)
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if body.Type != "generate" {
		return runtime.ErrNoHandler
	}

	id := fmt.Sprintf("%s-%d", n.nodeID, ctx.NextMsgID())

	reply, err := ctx.ConstructReply(msg, generateOkPayload{Type: "generate_ok", ID: id})
	if err != nil {
		return fmt.Errorf("build generate_ok: %w", err)
	}
	if err := ctx.Send(reply); err != nil {
		return fmt.Errorf("send generate_ok: %w", err)
	}
	return nil
}
