// Command cursor-flow drives a coding agent through a JSON task queue.
package main

import (
	"fmt"
	"os"

	"github.com/smartdio/cursor-flow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
