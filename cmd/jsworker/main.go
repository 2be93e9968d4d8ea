// Command jsworker runs a host script that creates JavaScript workers.
//
//	jsworker -main main.js -root ./scripts
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	worker "github.com/cryguy/jsworker"
)

func main() {
	var (
		mainScript  = flag.String("main", "", "Host script to run, resolved against -root")
		root        = flag.String("root", "", "Script root directory (default $WORKER_SCRIPT_ROOT)")
		timeout     = flag.Duration("timeout", 0, "Stop the host after this long, 0 for no limit")
		dev         = flag.Bool("dev", false, "Human readable development logging")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address")
	)
	flag.Parse()

	if *mainScript == "" {
		fmt.Fprintln(os.Stderr, "Usage: jsworker -main <script.js> [-root dir] [-timeout 30s] [-dev] [-metrics :9090]")
		os.Exit(2)
	}

	if err := run(*mainScript, *root, *timeout, *dev, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(mainScript, root string, timeout time.Duration, dev bool, metricsAddr string) error {
	// A missing .env is fine; the environment and defaults still apply.
	_ = godotenv.Load()

	cfg, err := worker.LoadConfig()
	if err != nil {
		return err
	}
	if root != "" {
		cfg.ScriptRoot = root
	}

	logger, err := worker.NewLogger(worker.LoggerConfig{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment || dev,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	worker.SetLogger(logger)

	loader := worker.NewDirLoader(cfg.ScriptRoot, cfg.MaxScriptSizeKB)
	script, err := loader.Load(mainScript)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	h, err := worker.NewHost(cfg, loader,
		worker.WithHostLogger(logger),
		worker.WithHostRegisterer(reg),
	)
	if err != nil {
		return err
	}

	logger.Info("running host script",
		zap.String("script", script.Name),
		zap.String("root", cfg.ScriptRoot),
		zap.String("backend", worker.Backend()),
	)
	start := time.Now()
	err = h.Run(ctx, script)
	logger.Info("host script finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return err
}
