package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/api"
	"github.com/abelzeko/water-watcher/internal/app"
	"github.com/abelzeko/water-watcher/internal/auth"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.toml if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	a, err := app.New(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.Config, a.Log
	log.Info("Starting Water-Watcher API",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.HTTP.Port),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := auth.NewJWTManager(cfg.JWT)
	server := api.NewServer(cfg, log, tokens, a.APIServices(tokens), a.Ping)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           server.Router(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	srv.RegisterOnShutdown(server.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
		return err
	}

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited")
	return nil
}
