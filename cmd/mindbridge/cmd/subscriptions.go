package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/internal/pkg/env"
	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
	"github.com/fitstack/mindbridge/internal/pkg/subscription"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

const commandTimeout = 60 * time.Second

func webhookTargetURL(flagURL string) string {
	if flagURL != "" {
		return flagURL
	}
	return strings.TrimSpace(env.GetEnv("WEBHOOK_URL", ""))
}

func NewSubscribeCmd(parent *cobra.Command) {
	var url string
	var verify bool

	cmd := &cobra.Command{
		Use:     "subscribe [event-type...]",
		GroupID: "webhooks",
		Short:   "Creates webhook subscriptions for the given event types (default: configured allow-list)",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := webhookTargetURL(url)
			if target == "" {
				return fmt.Errorf("no webhook URL: set WEBHOOK_URL or pass --url")
			}

			eventTypes := args
			if len(eventTypes) == 0 {
				eventTypes = webhook.ConfigFromEnv().SupportedEvents
			}

			client := mindbody.NewClientFromEnv()
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if verify {
				if err := pingTarget(ctx, client, target); err != nil {
					return fmt.Errorf("webhook URL is not reachable: %w", err)
				}
				cmd.Printf("verified %s is reachable\n", target)
			}

			var failed int
			for _, eventType := range eventTypes {
				sub, err := client.CreateSubscription(ctx, eventType, target)
				if err != nil {
					failed++
					cmd.PrintErrf("subscribe %s: %v\n", eventType, err)
					continue
				}
				cmd.Printf("subscribed %s (id %s)\n", eventType, sub.ID)
			}

			cmd.Printf("%d subscribed, %d failed\n", len(eventTypes)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d subscription(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "webhook target URL (default WEBHOOK_URL)")
	cmd.Flags().BoolVar(&verify, "verify", false, "send a signed test ping to the URL before subscribing")
	parent.AddCommand(cmd)
}

// pingTarget delivers a synthetic signed event so a misconfigured URL is
// caught before the provider starts sending real traffic at it.
func pingTarget(ctx context.Context, client *mindbody.Client, target string) error {
	body := []byte(fmt.Sprintf(`{"EventId":"ping-%d","EventType":"test.ping","EventData":{}}`, time.Now().Unix()))
	secret := env.GetEnv("MINDBODY_WEBHOOK_SECRET", "")
	var sig string
	if secret != "" {
		sig = webhook.ComputeSignature(secret, body)
	}
	return client.Ping(ctx, target, body, webhook.SignatureHeaderCandidates[0], sig)
}

func NewUnsubscribeCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "unsubscribe [event-type...]",
		GroupID: "webhooks",
		Short:   "Removes webhook subscriptions for the given event types",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := mindbody.NewClientFromEnv()
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			remote, err := client.ListSubscriptions(ctx)
			if err != nil {
				return err
			}

			wanted := make(map[string]bool, len(args))
			for _, eventType := range args {
				wanted[eventType] = true
			}

			var removed, failed int
			for _, sub := range remote {
				if !wanted[sub.EventType] {
					continue
				}
				if err := client.DeleteSubscription(ctx, sub.ID); err != nil {
					failed++
					cmd.PrintErrf("unsubscribe %s (%s): %v\n", sub.EventType, sub.ID, err)
					continue
				}
				removed++
				cmd.Printf("unsubscribed %s (id %s)\n", sub.EventType, sub.ID)
			}

			cmd.Printf("%d removed, %d failed\n", removed, failed)
			if failed > 0 {
				return fmt.Errorf("%d removal(s) failed", failed)
			}
			return nil
		},
	}
	parent.AddCommand(cmd)
}

func NewListCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "list",
		GroupID: "webhooks",
		Short:   "Lists the provider's current webhook subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := mindbody.NewClientFromEnv()
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			subs, err := client.ListSubscriptions(ctx)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				cmd.Println("no subscriptions")
				return nil
			}
			for _, sub := range subs {
				active := "inactive"
				if sub.Active {
					active = "active"
				}
				cmd.Printf("%-40s %-10s %s -> %s\n", sub.EventType, active, sub.ID, sub.URL)
			}
			return nil
		},
	}
	parent.AddCommand(cmd)
}

func NewSyncCmd(parent *cobra.Command) {
	var url string
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "webhooks",
		Short:   "Reconciles remote subscriptions against the configured event types",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := webhookTargetURL(url)
			if target == "" {
				return fmt.Errorf("no webhook URL: set WEBHOOK_URL or pass --url")
			}

			client := mindbody.NewClientFromEnv()
			sync := subscription.NewSynchronizer(client, env.GetEnvBool("WEBHOOK_AUTO_CLEANUP", false))
			desired := webhook.ConfigFromEnv().SupportedEvents

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			plan, err := sync.BuildPlan(ctx, desired, target)
			if err != nil {
				return err
			}

			for _, eventType := range plan.ToAdd {
				cmd.Printf("add    %s\n", eventType)
			}
			for _, sub := range plan.ToUpdate {
				cmd.Printf("update %s (%s -> %s)\n", sub.EventType, sub.URL, target)
			}
			for _, sub := range plan.ToRemove {
				cmd.Printf("remove %s (%s)\n", sub.EventType, sub.ID)
			}
			for _, sub := range plan.Unmanaged {
				cmd.Printf("keep   %s (%s, unmanaged)\n", sub.EventType, sub.ID)
			}
			if plan.Empty() {
				cmd.Println("in sync, nothing to do")
				return nil
			}
			if dryRun {
				return nil
			}

			result := sync.Apply(ctx, plan)
			cmd.Printf("%d added, %d updated, %d removed, %d failed\n",
				result.Added, result.Updated, result.Removed, len(result.Errors))
			for _, err := range result.Errors {
				cmd.PrintErrf("sync: %v\n", err)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d operation(s) failed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "webhook target URL (default WEBHOOK_URL)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")
	parent.AddCommand(cmd)
}
