package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/internal/pkg/database"
	"github.com/fitstack/mindbridge/internal/pkg/env"
	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
	"github.com/fitstack/mindbridge/internal/pkg/tokencache"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

func NewCleanupCmd(parent *cobra.Command) {
	var events, tokens bool

	cmd := &cobra.Command{
		Use:     "cleanup",
		GroupID: "ops",
		Short:   "Deletes old webhook events and stale token rows per the retention windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			database.SetupDatabase()
			now := time.Now()

			// No flags means clean everything.
			all := !events && !tokens

			if events || all {
				cfg := webhook.ConfigFromEnv()
				svc := webhook.NewService(webhook.NewRepository(database.GetDB()), cfg)
				processedDeleted, failedDeleted, err := svc.Cleanup(now)
				if err != nil {
					return err
				}
				cmd.Printf("events: %d processed and %d failed rows deleted\n", processedDeleted, failedDeleted)
			}

			if tokens || all {
				mgr := tokencache.NewManager(
					mindbody.NewClientFromEnv(),
					tokencache.NewRedisStore(),
					tokencache.NewRepository(database.GetDB()),
				)
				retention := time.Duration(env.GetEnvInt("TOKEN_RETENTION_DAYS", 30)) * 24 * time.Hour
				deleted, err := mgr.Cleanup(retention)
				if err != nil {
					return err
				}
				cmd.Printf("tokens: %d stale rows deleted\n", deleted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "clean webhook events only")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "clean token rows only")
	parent.AddCommand(cmd)
}
