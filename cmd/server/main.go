package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"

	"browsercore/internal/di"
	"browsercore/internal/infrastructure/env"
)

func main() {
	envService := env.NewEnvService()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, di.ConfigFromEnv(envService, "http-server"))
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer container.Close()

	httpLogger := httplog.NewLogger("browsercore", httplog.Options{
		JSON:    envService.GetBool("LOG_JSON", true),
		Concise: true,
	})

	router := container.HTTP.Routes()

	addr := envService.GetWithDefault("HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: httplog.RequestLogger(httpLogger)(router),
	}

	go func() {
		container.Logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	container.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
