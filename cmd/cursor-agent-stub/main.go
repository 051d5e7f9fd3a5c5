// Command cursor-agent-stub is a scripted stand-in for the real cursor-agent
// binary, for tests and dry runs. The script and turn-state paths come from
// CURSOR_STUB_SCRIPT and CURSOR_STUB_STATE.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smartdio/cursor-flow/internal/stubagent"
)

func main() {
	scriptPath := os.Getenv("CURSOR_STUB_SCRIPT")
	if scriptPath == "" {
		fmt.Fprintln(os.Stderr, "CURSOR_STUB_SCRIPT must point at a script file")
		os.Exit(2)
	}

	statePath := os.Getenv("CURSOR_STUB_STATE")
	if statePath == "" {
		statePath = filepath.Join(filepath.Dir(scriptPath), ".stub-state")
	}

	script, err := stubagent.LoadScript(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load stub script: %v\n", err)
		os.Exit(2)
	}

	inv, err := stubagent.ParseArgs(os.Args[1:], os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad arguments: %v\n", err)
		os.Exit(2)
	}

	os.Exit(stubagent.Run(script, statePath, inv, os.Stdout, os.Stderr))
}
