package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unitattendance/internal/attendance"
	"unitattendance/internal/config"
	"unitattendance/internal/handler"
	"unitattendance/internal/httpmiddleware"
	"unitattendance/internal/queue"
	"unitattendance/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// backend is the persistence wiring chosen by PERSISTENCE_BACKEND.
type backend struct {
	gateway   attendance.Gateway
	roster    attendance.RosterProvider
	summaries *store.SummaryRepository
	db        *store.DB
}

func openBackend(ctx context.Context, cfg config.App, redisClient *store.Redis) (backend, error) {
	switch cfg.PersistenceBackend {
	case "postgres":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return backend{}, err
		}
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				_ = db.Close()
				return backend{}, err
			}
		}
		return backend{
			gateway:   store.NewAttendanceRepository(db.Client),
			roster:    store.NewRosterRepository(db.Client),
			summaries: store.NewSummaryRepository(db.Client),
			db:        db,
		}, nil
	case "redis", "file":
		roster, err := store.NewFileRoster(cfg.DataDir)
		if err != nil {
			return backend{}, err
		}
		if cfg.PersistenceBackend == "redis" {
			return backend{gateway: store.NewRedisLedger(redisClient.Client, cfg.RecordsKey), roster: roster}, nil
		}
		ledger, err := store.NewFileLedger(cfg.DataDir)
		if err != nil {
			return backend{}, err
		}
		return backend{gateway: ledger, roster: roster}, nil
	default:
		return backend{}, errors.New("unknown PERSISTENCE_BACKEND " + cfg.PersistenceBackend)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	be, err := openBackend(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		if be.db != nil {
			_ = be.db.Close()
		}
	}()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		q = mem
		// no separate worker in this mode; drain summaries in-process
		go func() {
			_ = queue.ConsumeSummaries(ctx, mem, func(ctx context.Context, s attendance.SessionSummary) error {
				if be.summaries == nil {
					return nil
				}
				return be.summaries.Save(ctx, s)
			})
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.SessionsQueueKey)
	}

	eng := attendance.New(be.roster, be.gateway,
		attendance.WithGrace(cfg.LectureGrace),
		attendance.WithMaxDuration(time.Duration(cfg.MaxLectureMinutes)*time.Minute),
		attendance.WithNotifier(queue.NewSessionPublisher(q)),
	)
	if err := eng.Load(ctx); err != nil {
		return err
	}
	go eng.RunSweeper(ctx, cfg.CleanupInterval)

	r := gin.New()
	r.UseRawPath = true // student IDs such as BIT/001/2024 contain slashes

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if cfg.Dev() {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:   []string{"Content-Disposition"},
			MaxAge:          12 * time.Hour,
		}))
	}
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		rctx := c.Request.Context()
		body := gin.H{"status": "ok", "backend": cfg.PersistenceBackend, "active_lectures": len(eng.ActiveLectures(rctx))}
		status := http.StatusOK
		if cfg.QueueBackend != "memory" || cfg.PersistenceBackend == "redis" {
			ok := redisClient.Healthy(rctx)
			body["redis"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if be.db != nil {
			ok := be.db.Healthy(rctx)
			body["db"] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	limiter := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	h := handler.New(handler.Config{
		Engine:     eng,
		Roster:     be.roster,
		Summaries:  summaryLister(be.summaries),
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
	})
	h.Register(r, limiter.GinMiddleware())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s (persistence=%s, queue=%s)", cfg.HTTPPort, cfg.PersistenceBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	cancel()
	if err := eng.Flush(shutdownCtx); err != nil {
		log.Printf("final flush failed: %v", err)
	}

	log.Println("server exited")
	return nil
}

// summaryLister avoids handing the handler a typed nil.
func summaryLister(r *store.SummaryRepository) handler.SummaryLister {
	if r == nil {
		return nil
	}
	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
