// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/database"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/router"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}

	configureLogging(cfg)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.Fatal("Failed to run migrations: ", err)
	}

	if cfg.Database.SeedDemo && !cfg.IsProduction() {
		if err := database.SeedDemoData(db); err != nil {
			logrus.Fatal("Failed to seed demo data: ", err)
		}
	}

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logrus.Fatal("Failed to connect to Redis: ", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// redis.Cmdable must stay a nil interface when redis is disabled
	var svc *router.Services
	if redisClient != nil {
		svc, err = router.BuildServices(db, cfg, redisClient)
	} else {
		svc, err = router.BuildServices(db, cfg, nil)
	}
	if err != nil {
		logrus.Fatal("Failed to initialize services: ", err)
	}

	// Initialize router
	r := router.Initialize(db, cfg, svc)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if cfg.Fulfillment.EnableWorker {
		worker := services.NewRetryWorker(svc.Fulfillment, svc.Charges, cfg.Fulfillment)
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":             cfg.Server.Port,
			"fulfillment_mode": cfg.Fulfillment.Mode,
			"payment_provider": cfg.Payment.Provider,
			"minter":           cfg.Blockchain.Minter,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatal("Server forced to shutdown: ", err)
	}

	stopWorker()
	<-workerDone

	logrus.Info("Server exited")
}

func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	format := cfg.Log.Format
	if format == "" && cfg.IsProduction() {
		format = "json"
	}
	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
