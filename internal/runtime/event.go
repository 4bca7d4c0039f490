package runtime

import "github.com/jabolina/mael-node/internal/proto"

// Kind discriminates the three event sources the scheduler demultiplexes:
// inbound network messages, self-injected timer signals, and stdin EOF.
type Kind int

const (
	KindMessage Kind = iota
	KindInjected
	KindEOF
)

// Event is the tagged union pulled off the inbound channel by the
// scheduler. Injected carries an opaque workload-defined signal (e.g. the
// gossip engine's tick) as `any`; the workload type-asserts it back to
// its own signal type.
type Event struct {
	Kind     Kind
	Message  proto.Message
	Injected any
}

func MessageEvent(m proto.Message) Event { return Event{Kind: KindMessage, Message: m} }
func InjectedEvent(signal any) Event     { return Event{Kind: KindInjected, Injected: signal} }
func EOFEvent() Event                    { return Event{Kind: KindEOF} }
