// Command megadl is a concurrent mega.nz download manager: resolve
// share links and .dlc containers, stream files to disk with
// resumable session tracking, and optionally accept URLs pushed from
// a browser over a local HTTP ingress API.
package main

import (
	"fmt"
	"os"

	"github.com/nshenoy/megadl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
