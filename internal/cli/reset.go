package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartdio/cursor-flow/internal/queue"
)

var resetCmd = &cobra.Command{
	Use:   "reset <task-id> [queue-file]",
	Short: "Return a finished task to pending so the next run re-executes it",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	taskID := args[0]
	queuePath := "queue.json"
	if len(args) == 2 {
		queuePath = args[1]
	}

	store, err := queue.Load(queuePath, logger)
	if err != nil {
		return err
	}

	if err := store.Reset(taskID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task %s reset to pending\n", taskID)
	return nil
}
