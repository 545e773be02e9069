package main

import (
	"context"
	"log"
	"os"
	"time"

	"fitroomapi/dbhelper"
	"fitroomapi/services"
	"fitroomapi/tasks"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}
	googleKey := os.Getenv("GOOGLE_API_KEY")
	if googleKey == "" {
		log.Fatal("[Queue] GOOGLE_API_KEY environment variable is not set!")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         os.Getenv("SENTRY_DSN"),
		Environment: services.GetEnv("ENV", "local"),
		Release:     "fitroomapi@1.0.0",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
			"classify": 3,
		}},
	)
	awsService := &services.AWSService{}
	llm := services.NewGoogleGenAIService(googleKey)
	if err := awsService.InitPresignClient(context.Background()); err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}

	mux := asynq.NewServeMux()
	db := dbhelper.SetupDB()
	mux.HandleFunc("generate:run", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleGenerationTask(ctx, t, db, llm, awsService, app)
	})
	mux.HandleFunc("garments:classify", func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleClassifyBatchTask(ctx, t, db, llm, awsService, app)
	})

	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
