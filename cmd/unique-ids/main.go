// Command unique-ids runs the unique-ids workload against the
// Maelstrom harness over stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/runtime"
	"github.com/jabolina/mael-node/workload/uniqueids"
)

func main() {
	log := logging.NewDefaultLogger("unique-ids")
	node := uniqueids.New(log)
	rt := runtime.New(node, os.Stdin, os.Stdout, runtime.WithLogger(log))
	if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "unique-ids node exited: %v\n", err)
		os.Exit(1)
	}
}
