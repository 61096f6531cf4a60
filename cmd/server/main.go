package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/api/handlers"
	"github.com/postpilot-app/postpilot/internal/api/middleware"
	"github.com/postpilot-app/postpilot/internal/dispatcher"
	job "github.com/postpilot-app/postpilot/internal/jobs"
	"github.com/postpilot-app/postpilot/internal/publisher"
	"github.com/postpilot-app/postpilot/internal/queue"
	"github.com/postpilot-app/postpilot/internal/service"
	"github.com/postpilot-app/postpilot/internal/store"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	var (
		db       *sql.DB
		posts    store.PostStore
		conns    store.ConnectionDirectory
		attempts store.AttemptLog
	)

	if cfg.PostgresURI != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer closeDB(db)

		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}

		posts = store.NewPostgresPostStore(db, cfg.Dispatcher.MaxAttempts)
		conns = store.NewPostgresConnectionStore(db, cfg.SecretKey)
		attempts = store.NewPostgresAttemptLog(db)
	} else {
		log.Println("POSTGRES_URI not set, using in-memory store")
		mem := store.NewMemory(cfg.Dispatcher.MaxAttempts)
		posts, conns, attempts = mem, mem, mem
	}

	registry := publisher.NewDefaultRegistry(nil)
	d := dispatcher.New(posts, conns, attempts, registry, nil, cfg.Dispatcher)

	var client *asynq.Client
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client = asynq.NewClient(redisConn)
		defer client.Close()

		go func() {
			server := asynq.NewServer(redisConn, asynq.Config{
				Concurrency: 10,
			})

			mux := asynq.NewServeMux()
			queueW := queue.NewQueue(d)
			mux.HandleFunc(queue.TaskTypeDispatchKick, queueW.HandleDispatchKickTask)

			log.Println("Starting the Asynq server...")
			if err := server.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	} else {
		log.Println("REDIS_URI not set, relying on the cron sweep only")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postService := service.NewPostService(posts, attempts)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/approve", post.ApprovePost)
	api.Post("/posts/reschedule", post.ReschedulePost)
	api.Get("/posts/attempts", post.ListAttempts)

	conn := handlers.NewConnectionHandler(conns)
	api.Get("/connections", conn.ListConnections)

	if cfg.R2.AccountID != "" {
		mediaService, err := service.NewMediaService(cfg)
		if err != nil {
			log.Fatalf("Failed to init media service: %v", err)
		}
		media := handlers.NewMediaHandler(mediaService)
		api.Post("/media/upload", media.UploadMedia)
	}

	dispatch := handlers.NewDispatchHandler(d)
	app.Post("/internal/dispatch/run", dispatch.RunDispatch)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(*cfg, conns)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", func() {
		if err := d.RunOnce(context.Background()); err != nil {
			log.Printf("Dispatch run failed: %v", err)
		}
	})
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	if db != nil {
		closeDB(db)
	}
	log.Println("Server shutdown complete.")
}
