package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
	"github.com/yoockh/yoointerview/internal/api/routes"
	"github.com/yoockh/yoointerview/internal/bootstrap"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/workers"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	settings := config.LoadSettings()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, settings, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	sweeper := &workers.Sweeper{
		Redis:     app.Redis,
		Sessions:  app.Sessions,
		Scheduled: app.Scheduled,
		Interval:  settings.SweepInterval,
		Logger:    log,
	}
	if err := sweeper.Start(ctx); err != nil {
		log.WithError(err).Fatal("sweeper start failed")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Session:      handlers.NewSessionHandler(app.Sessions),
		Conversation: handlers.NewConversationHandler(app.Conversation),
		Scheduled:    handlers.NewScheduledHandler(app.Scheduled),
		Profile:      handlers.NewProfileHandler(app.Profiles),
		Transcript:   handlers.NewTranscriptHandler(app.Transcripts),
		WS:           handlers.NewWSHandler(app.Sessions, app.Redis, log),
	})

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", settings.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	app.Close(shutdownCtx)
}
