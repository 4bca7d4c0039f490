// Command g-counter runs the g-counter workload against the
// Maelstrom harness over stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/runtime"
	"github.com/jabolina/mael-node/workload/counter"
)

func main() {
	log := logging.NewDefaultLogger("g-counter")
	node := counter.New(log, runtime.GoInvoker{})
	rt := runtime.New(node, os.Stdin, os.Stdout, runtime.WithLogger(log))
	if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "g-counter node exited: %v\n", err)
		os.Exit(1)
	}
}
