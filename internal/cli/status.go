package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartdio/cursor-flow/internal/queue"
)

var statusCmd = &cobra.Command{
	Use:   "status [queue-file]",
	Short: "Show the state of every task in the queue",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	queuePath := "queue.json"
	if len(args) == 1 {
		queuePath = args[0]
	}

	store, err := queue.Load(queuePath, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDETAIL")
	for _, task := range store.Queue().Tasks {
		detail := task.ErrorMessage
		if detail == "" {
			detail = task.ReportPath
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.ID, task.Name, task.Status, detail)
	}
	return w.Flush()
}
