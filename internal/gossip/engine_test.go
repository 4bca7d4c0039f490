package gossip

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/mael-node/internal/crdt"
	"github.com/jabolina/mael-node/internal/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []sentGossip
}

type sentGossip struct {
	peer, diff, sv string
}

func (r *recordingSender) SendGossip(peer, diff, sv string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentGossip{peer, diff, sv})
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestEngine_TickSendsDiffToLaggingPeers(t *testing.T) {
	doc := crdt.NewORSet[int]("n1")
	require.NoError(t, doc.Add(1))
	sender := &recordingSender{}
	e := New(doc, sender, logging.Noop{}, "n1", []string{"n1", "n2"}, 1)

	e.Tick()

	require.Equal(t, 1, sender.count())
	require.Equal(t, "n2", sender.sent[0].peer)
	require.NotEmpty(t, sender.sent[0].diff)
	require.NotEmpty(t, sender.sent[0].sv)
}

func TestEngine_HandleGossipUpdatesKnownAndAppliesDiff(t *testing.T) {
	a := crdt.NewORSet[int]("n1")
	require.NoError(t, a.Add(1))
	require.NoError(t, a.Add(2))

	b := crdt.NewORSet[int]("n2")
	senderA := &recordingSender{}
	engineA := New(a, senderA, logging.Noop{}, "n1", []string{"n1", "n2"}, 1)
	engineA.Tick()
	require.Equal(t, 1, senderA.count())

	senderB := &recordingSender{}
	engineB := New(b, senderB, logging.Noop{}, "n2", []string{"n1", "n2"}, 1)
	msg := senderA.sent[0]
	require.NoError(t, engineB.HandleGossip("n1", msg.diff, msg.sv))

	values := b.Values()
	require.ElementsMatch(t, []int{1, 2}, values)

	engineB.mu.Lock()
	known := engineB.known["n1"]
	engineB.mu.Unlock()
	require.Equal(t, a.StateVector(), known)
}

func TestEngine_SelectNeighborhood_SmallClusterIncludesEveryone(t *testing.T) {
	doc := crdt.NewORSet[int]("n1")
	e := New(doc, &recordingSender{}, logging.Noop{}, "n1", []string{"n1", "n2", "n3"}, 1)
	require.ElementsMatch(t, []string{"n2", "n3"}, e.selectNeighborhood())
}

func TestEngine_HandleGossip_RejectsBadBase64(t *testing.T) {
	doc := crdt.NewORSet[int]("n1")
	e := New(doc, &recordingSender{}, logging.Noop{}, "n1", []string{"n1", "n2"}, 1)
	err := e.HandleGossip("n2", "not-valid-base64!!!", "also-not-valid!!!")
	require.Error(t, err)
}
