// Command kafka-log runs the kafka-log workload against the Maelstrom
// harness over stdin/stdout. The --linearizable-offsets flag switches
// offset assignment from the default CRDT-local scheme to a
// lin-kv-backed compare-and-swap loop.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jabolina/mael-node/internal/handler"
	"github.com/jabolina/mael-node/internal/linkv"
	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/rpc"
	"github.com/jabolina/mael-node/internal/runtime"
	"github.com/jabolina/mael-node/workload/kafkalog"
)

func main() {
	linearizable := flag.Bool("linearizable-offsets", false, "assign send offsets via lin-kv compare-and-swap instead of local CRDT ordering")
	flag.Parse()

	log := logging.NewDefaultLogger("kafka-log")
	pending := rpc.NewTable()

	runtimeOpts := []runtime.Option{runtime.WithLogger(log), runtime.WithPendingTable(pending)}

	var opts []kafkalog.Option
	if *linearizable {
		client := linkv.NewClient(pending, log)
		opts = append(opts, kafkalog.WithLinearizableOffsets(client))

		handlers := handler.NewRegistry()
		handlers.Register(client)
		runtimeOpts = append(runtimeOpts, runtime.WithHandlers(handlers))
	}

	node := kafkalog.New(log, runtime.GoInvoker{}, opts...)
	rt := runtime.New(node, os.Stdin, os.Stdout, runtimeOpts...)
	if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "kafka-log node exited: %v\n", err)
		os.Exit(1)
	}
}
