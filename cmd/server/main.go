package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"gumbo/internal/config"
	"gumbo/internal/database"
	"gumbo/internal/handlers"
	"gumbo/internal/health"
	"gumbo/internal/jobs"
	"gumbo/internal/logging"
	"gumbo/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting Gumbo suggestion engine...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabaseURL)

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		log.Printf("⚠️  Invalid tuning file %s, using defaults: %v", cfg.TuningFile, err)
	}

	// Proposition store (SQLite)
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	store := services.NewSQLitePropositionStore(db)

	healthService := health.NewService(cfg.HealthFailureThreshold, cfg.HealthCooldown)
	healthService.Register(health.ComponentStore, cfg.DatabaseURL)

	// Suggestions go to MongoDB when configured, otherwise next to the propositions
	var sink services.SuggestionSink = store
	var pruner services.SuggestionPruner = store
	sinkComponent := health.ComponentStore

	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️  MongoDB unavailable, archiving suggestions in SQLite: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mongoDB.Initialize(ctx); err != nil {
				log.Printf("⚠️  Failed to initialize MongoDB indexes: %v", err)
			}
			cancel()

			archive := services.NewMongoSuggestionArchive(mongoDB)
			sink, pruner = archive, archive
			sinkComponent = health.ComponentArchive
			log.Println("✅ Suggestions archived in MongoDB")
		}
	}

	// Delivery over Redis pub/sub (optional)
	var publisher services.SuggestionPublisher
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, suggestions will not be delivered: %v", err)
		} else {
			publisher = services.NewRedisSuggestionPublisher(redisService, cfg.SuggestionChannel, uuid.NewString())
			log.Printf("📡 Publishing suggestions on %s", cfg.SuggestionChannel)
		}
	}

	completion := services.NewCompletionClient(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.CompletionModel, healthService)
	limiter := services.NewSuggestionRateLimiter(cfg.RateLimitCapacity, cfg.RefillPerSecond())
	metrics := services.NewSuggestionMetrics(prometheus.DefaultRegisterer, func() float64 {
		return float64(limiter.Status().TokensAvailable)
	})

	bundles := services.NewBundleCreator(services.NewEntityExtractor(), tuning.InferencesPerBundle)
	var scorer services.CandidateScorer
	if cfg.ScoringStrategy == services.StrategyPriority {
		scorer = services.NewPriorityScorer(bundles)
	}

	engine, err := services.NewSuggestionEngine(services.EngineDeps{
		Store:               store,
		Sink:                sink,
		Completion:          completion,
		Limiter:             limiter,
		Scorer:              scorer,
		Bundles:             bundles,
		Publisher:           publisher,
		Metrics:             metrics,
		Health:              healthService,
		SinkComponent:       sinkComponent,
		CompletionTimeout:   cfg.CompletionTimeout,
		CompletionMaxTokens: cfg.CompletionMaxTokens,
		UserName:            cfg.UserName,
		BundleAwareTrigger:  cfg.BundleAwareTrigger,
	}, tuning)
	if err != nil {
		log.Fatalf("❌ Failed to create suggestion engine: %v", err)
	}
	engine.Start()

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	if cfg.SweepCron != "" {
		if err := jobScheduler.Register(jobs.NewBundleSweepJob(engine), cfg.SweepCron); err != nil {
			log.Printf("⚠️  Bundle sweep disabled: %v", err)
		}
	}
	if cfg.RetentionCron != "" {
		if err := jobScheduler.Register(jobs.NewRetentionCleanupJob(pruner, cfg.SuggestionRetention), cfg.RetentionCron); err != nil {
			log.Printf("⚠️  Suggestion retention disabled: %v", err)
		}
	}
	jobScheduler.Start()
	log.Printf("🕐 Background jobs: bundle sweep (%s), retention cleanup (%s, keep %v)",
		cfg.SweepCron, cfg.RetentionCron, cfg.SuggestionRetention)

	if cfg.TuningFile != "" {
		go startTuningFileWatcher(cfg.TuningFile, engine)
	}

	app := fiber.New(fiber.Config{
		AppName: "Gumbo v1.0",
		// A trigger runs several completion calls in sequence
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  5 * time.Minute,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("gumbo")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	healthHandler := handlers.NewHealthHandler(engine, jobScheduler)
	if mongoDB != nil {
		healthHandler.AddDependency("mongodb", mongoDB)
	}
	if redisService != nil {
		healthHandler.AddDependency("redis", redisService)
	}
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Get("/suggestions/health", healthHandler.Detail)
	handlers.NewSuggestionHandler(engine, 2*time.Minute).RegisterRoutes(api, cfg.AdminEndpoints)
	if cfg.AdminEndpoints {
		log.Println("🔧 Admin endpoints enabled (rate-limit reset)")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		// Stop background jobs before the engine
		jobScheduler.Stop()
		engine.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}

		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}
		if mongoDB != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := mongoDB.Close(ctx); err != nil {
				log.Printf("⚠️ Error closing MongoDB: %v", err)
			}
			cancel()
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// startTuningFileWatcher watches the tuning file and applies changes to the running engine
func startTuningFileWatcher(filePath string, engine *services.SuggestionEngine) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 Detected changes in %s, reloading tuning...", filePath)

					tuning, err := config.LoadTuning(filePath)
					if err != nil {
						log.Printf("❌ Keeping current tuning, %s is invalid: %v", filePath, err)
						return
					}
					if err := engine.ApplyTuning(tuning); err != nil {
						log.Printf("❌ Failed to apply tuning: %v", err)
						return
					}
					log.Printf("✅ Tuning reloaded from %s", filePath)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
