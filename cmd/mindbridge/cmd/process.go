package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/internal/pkg/database"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

func NewProcessPendingCmd(parent *cobra.Command) {
	var limit int
	var deadlineSeconds int

	cmd := &cobra.Command{
		Use:     "process-pending",
		GroupID: "ops",
		Short:   "Processes retryable webhook events in one batch",
		Long: `Processes stored events that are unprocessed and still under the retry
budget. Stops admitting new events once the deadline passes; the rest
stay pending for the next invocation. Failed events are not re-queued
here; their retry budget bookkeeping still applies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			database.SetupDatabase()

			cfg := webhook.ConfigFromEnv()
			svc := webhook.NewService(webhook.NewRepository(database.GetDB()), cfg)
			// No dispatcher: failures stay in the table for the next run.

			deadline := time.Duration(deadlineSeconds) * time.Second
			succeeded, failed := svc.ProcessPending(cmd.Context(), limit, deadline)

			cmd.Printf("%d processed, %d failed\n", succeeded, failed)
			if failed > 0 {
				return fmt.Errorf("%d event(s) failed processing", failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events to process")
	cmd.Flags().IntVar(&deadlineSeconds, "deadline", 300, "wall-clock budget in seconds (0 = no deadline)")
	parent.AddCommand(cmd)
}
