package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cart-session-service/backend"
	"cart-session-service/config"
	"cart-session-service/controllers"
	"cart-session-service/kafka"
	"cart-session-service/logger"
	"cart-session-service/routes"
	"cart-session-service/services"
	"cart-session-service/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zapLogger, err := logger.Initialize(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	sessions := store.NewSessionStore()
	backendSvc := backend.NewMemoryContextService(cfg.BackendContextTTL)
	cartService := services.NewCartService(sessions, backendSvc, cfg.TaxRate, zapLogger)

	producer := kafka.NewProducer(cfg.Brokers(), cfg.KafkaTopic, zapLogger)
	defer producer.Close()

	controller := controllers.NewCartController(cartService, producer, zapLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(logger.RequestLogger(zapLogger), gin.Recovery())
	routes.RegisterCartRoutes(router, controller)

	// The store never starts timers; the host owns the sweep schedule.
	sweepDone := make(chan struct{})
	sweepTicker := time.NewTicker(cfg.SweepInterval)
	go func() {
		defer sweepTicker.Stop()
		for {
			select {
			case now := <-sweepTicker.C:
				if removed := sessions.SweepExpiredSessions(cfg.SessionIdleTTL, now); removed > 0 {
					zapLogger.Info("swept idle sessions", zap.Int("removed", removed))
				}
			case <-sweepDone:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("cart session service is running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLogger.Info("shutting down gracefully")
	close(sweepDone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("shutdown error", zap.Error(err))
	}
	zapLogger.Info("server shutdown complete")
}
