package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browsermcp/internal/adapter/mcpserver"
	"browsermcp/internal/adapter/tool"
	"browsermcp/internal/browser"
	"browsermcp/internal/convert"
	"browsermcp/internal/infra/config"
	"browsermcp/internal/infra/logger"
	"browsermcp/internal/infra/tracer"
	"browsermcp/internal/search"
	"browsermcp/internal/security"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			log.Warn("tracer shutdown error", "error", err)
		}
	}()

	validator := &security.Validator{AllowPrivate: cfg.Security.AllowPrivate}

	sessions := browser.NewManager(cfg.Browser, log)
	if err := sessions.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sessions.Stop(sctx); err != nil {
			log.Warn("browser stop error", "error", err)
		}
	}()

	pipeline := browser.NewPipeline(sessions, validator, cfg.Browser.ReadinessBudget, log)
	orchestrator := search.NewOrchestrator(pipeline, log)
	converter := convert.NewService(cfg.Converter, validator, log)
	limiter := tool.NewSearchThrottle(cfg.Search.RateLimit, cfg.Search.RateWindow)

	registry := tool.NewRegistry()
	if err := registry.Register(tool.NewFetchTool(pipeline, log)); err != nil {
		return err
	}
	if err := registry.Register(tool.NewSearchTool(orchestrator, limiter, cfg.Search.CacheTTL, log)); err != nil {
		return err
	}
	if err := registry.Register(tool.NewConvertTool(converter, log)); err != nil {
		return err
	}
	if err := registry.Register(tool.NewInteractTool(sessions, log)); err != nil {
		return err
	}
	if err := registry.Register(tool.NewPDFTool(sessions, cfg.Browser.DownloadDir, log)); err != nil {
		return err
	}

	srv := mcpserver.New(cfg.Server, registry, log)
	return srv.Run(ctx)
}
