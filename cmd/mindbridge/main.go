package main

import (
	"github.com/fitstack/mindbridge/cmd/mindbridge/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := cmd.NewRootCmd(version)
	cmd.NewServeCmd(rootCmd)
	cmd.NewSubscribeCmd(rootCmd)
	cmd.NewUnsubscribeCmd(rootCmd)
	cmd.NewListCmd(rootCmd)
	cmd.NewSyncCmd(rootCmd)
	cmd.NewProcessPendingCmd(rootCmd)
	cmd.NewCleanupCmd(rootCmd)
	cmd.NewTokenCmd(rootCmd)
	cmd.Execute(rootCmd)
}
