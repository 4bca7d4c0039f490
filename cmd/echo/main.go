// Command echo runs the echo workload against the Maelstrom harness
// over stdin/stdout.
package main

import (
	"fmt"
	"os"

	"github.com/jabolina/mael-node/internal/logging"
	"github.com/jabolina/mael-node/internal/runtime"
	"github.com/jabolina/mael-node/workload/echo"
)

func main() {
	log := logging.NewDefaultLogger("echo")
	node := echo.New(log)
	rt := runtime.New(node, os.Stdin, os.Stdout, runtime.WithLogger(log))
	if err := rt.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "echo node exited: %v\n", err)
		os.Exit(1)
	}
}
