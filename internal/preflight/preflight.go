// Package preflight verifies the environment before a queue run starts, so
// misconfiguration fails fast instead of surfacing mid-run as agent errors.
package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/smartdio/cursor-flow/internal/config"
)

// Check validates that the configured agent binary is runnable and the judge
// credentials are resolvable. It returns the first problem found.
func Check(cfg *config.Config) error {
	binary := cfg.Agent.Binary
	if strings.ContainsRune(binary, os.PathSeparator) {
		info, err := os.Stat(binary)
		if err != nil {
			return fmt.Errorf("agent binary %s: %w", binary, err)
		}
		if info.IsDir() || info.Mode()&0111 == 0 {
			return fmt.Errorf("agent binary %s is not executable", binary)
		}
	} else if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("agent binary %q not found in PATH: %w", binary, err)
	}

	if cfg.Agent.WorkDir != "" {
		info, err := os.Stat(cfg.Agent.WorkDir)
		if err != nil {
			return fmt.Errorf("agent work_dir %s: %w", cfg.Agent.WorkDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("agent work_dir %s is not a directory", cfg.Agent.WorkDir)
		}
	}

	if _, err := cfg.JudgeAPIKey(); err != nil {
		return fmt.Errorf("judge credentials: %w", err)
	}
	return nil
}

// Probe asks the agent binary for its version string. Best effort; callers
// log the result rather than failing the run on it.
func Probe(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("version probe failed: %w", err)
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "", fmt.Errorf("version probe returned no output")
	}
	return version, nil
}
