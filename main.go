/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mpromonet/gin-tflite-vision/config"
)

var (
	configPath = flag.String("config", "", "path to a YAML or TOML config file; overrides the model flags")
	modelPath  = flag.String("model", "models/lite-model_yolo-v5-tflite_tflite_model_1.tflite", "path to model file")
	labelPath  = flag.String("label", "models/coco.names", "path to label file")
	modelKind  = flag.String("kind", string(config.KindYolo), "model kind: efficientdet, ssd, yolo, posenet or signature")
	delegate   = flag.String("delegate", string(config.DelegateEdgeTPU), "delegate: none, xnnpack or edgetpu")
	aspect     = flag.String("aspect", "", "aspect mode: none, fit or fill")
	listen     = flag.String("listen", config.DefaultListen, "listen address")
	staticDir  = flag.String("static", "./static", "directory served at /")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warn or error")
)

// loadConfig reads -config, or builds a one-model configuration from the
// other flags.
func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		if cfg.Static == "" {
			cfg.Static = *staticDir
		}
		return cfg, nil
	}
	cfg := &config.Config{
		Listen:   *listen,
		Static:   *staticDir,
		LogLevel: *logLevel,
		Models: []config.Model{{
			Name:     "default",
			Kind:     config.Kind(*modelKind),
			Path:     *modelPath,
			Labels:   *labelPath,
			Delegate: config.Delegate(*delegate),
			Aspect:   *aspect,
		}},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level}))
	slog.SetDefault(logger)
	if cfg.Level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	registry, err := NewRegistry(cfg, logger)
	if err != nil {
		logger.Error("cannot load models", "err", err)
		os.Exit(1)
	}
	defer registry.Close()

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      NewServer(registry, logger).Router(cfg.Static),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()

	logger.Info("server starting", "addr", srv.Addr, "models", len(cfg.Models))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
	}
}
