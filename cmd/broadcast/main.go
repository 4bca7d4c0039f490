// Command broadcast runs the broadcast workload against the
// Maelstrom harness over stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/runtime"
	"github.com/jabolina/mael-node/workload/broadcast"
)

func main() {
	log := logging.NewDefaultLogger("broadcast")
	node := broadcast.New(log, runtime.GoInvoker{})
	rt := runtime.New(node, os.Stdin, os.Stdout, runtime.WithLogger(log))
	if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "broadcast node exited: %v\n", err)
		os.Exit(1)
	}
}
