package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/internal/pkg/env"
)

var appVersion string

func NewRootCmd(version string) *cobra.Command {
	appVersion = version

	cmd := &cobra.Command{
		Use:          "mindbridge",
		Short:        "mindbridge receives Mindbody webhooks and manages subscriptions and tokens",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.SetupEnvFile()
		},
	}
	cmd.AddGroup(&cobra.Group{
		ID:    "webhooks",
		Title: "Webhook management",
	})
	cmd.AddGroup(&cobra.Group{
		ID:    "ops",
		Title: "Operations",
	})

	return cmd
}

func Execute(command *cobra.Command) {
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
