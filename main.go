package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/controllers"
	"github.com/elvinn/hongbao-cover-ai-sub000/app/repository"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/assetstore"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/cache"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/database"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/env"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/generation"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/jobqueue"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/payments"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/router"
)

func main() {
	app, queue := NewApplication()

	queue.Start()
	defer queue.Stop()

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fiberlog.Info("Shutting down...")
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Queue) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	// Asset store is optional; without it covers keep their provider URL
	var store *assetstore.Client
	if cfg := assetstore.LoadConfigFromEnv(); cfg.Enabled {
		var err error
		store, err = assetstore.NewClient(cfg)
		if err != nil {
			fiberlog.Warnf("Asset store unavailable, covers will not be mirrored: %v", err)
			store = nil
		}
	}

	queue := jobqueue.NewQueue(3, store)

	creditsService := credits.NewServiceFromDB(db, cache.NewBalanceSnapshotCache())
	paymentsService := payments.NewServiceFromDB(db, creditsService, payments.NewStripeClientFromEnv())
	generationService := generation.NewService(
		generation.NewProviderFromEnv(),
		creditsService,
		repository.GetCoverImageRepository(),
		queue,
	)

	controllers.Initialize(creditsService, paymentsService, generationService, store)

	app := fiber.New(fiber.Config{
		AppName: "hongbao-cover-ai",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	router.InstallRouter(app)

	return app, queue
}
