package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/fitstack/mindbridge/app/controllers"
	"github.com/fitstack/mindbridge/internal/pkg/cache"
	"github.com/fitstack/mindbridge/internal/pkg/database"
	"github.com/fitstack/mindbridge/internal/pkg/env"
	"github.com/fitstack/mindbridge/internal/pkg/jobqueue"
	"github.com/fitstack/mindbridge/internal/pkg/router"
	"github.com/fitstack/mindbridge/internal/pkg/webhook"
)

func NewServeCmd(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "ops",
		Short:   "Runs the webhook receiver HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, shutdown := NewApplication()
			defer shutdown()

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				<-sigCh
				log.Info("Shutting down...")
				_ = app.Shutdown()
			}()

			addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
			return app.Listen(addr)
		},
	}
	parent.AddCommand(cmd)
}

// NewApplication wires the database, cache, dispatcher, and routes into a
// Fiber app. The returned shutdown func stops the background workers.
func NewApplication() (*fiber.App, func()) {
	database.SetupDatabase()
	cache.SetupCache()

	cfg := webhook.ConfigFromEnv()
	svc := webhook.NewService(webhook.NewRepository(database.GetDB()), cfg)

	var queue *jobqueue.Queue
	shutdown := func() {}
	if cfg.DispatchMode == webhook.DispatchQueue {
		queue = jobqueue.NewQueue(svc, env.GetEnvInt("WEBHOOK_QUEUE_WORKERS", 3))
		svc.SetDispatcher(queue)
		queue.Start()
		shutdown = queue.Stop
	} else {
		svc.SetDispatcher(webhook.NewSyncDispatcher(svc))
	}

	app := fiber.New(fiber.Config{
		AppName: "mindbridge",
	})
	app.Use(recover.New(), logger.New())

	ctrl := controllers.NewWebhookController(svc, queue, appVersion)
	router.InstallRouter(app, ctrl, cfg)

	return app, shutdown
}
