package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memwatch/internal/app"
	"memwatch/internal/config"
	merr "memwatch/internal/errors"
	"memwatch/internal/procinfo"
	"memwatch/internal/syslimit"
	"memwatch/internal/sysinfo"
)

func main() {
	var (
		memInfoFlag  string
		procRootFlag string
		pollFlag     time.Duration
		reportFlag   time.Duration
		debugFlag    bool
	)

	flag.StringVar(&memInfoFlag, "meminfo", "", "meminfo pseudo-file path (default: /proc/meminfo)")
	flag.StringVar(&procRootFlag, "proc", "", "proc filesystem root (default: /proc)")
	flag.DurationVar(&pollFlag, "poll", 0, "snapshot poll interval (default: 1s)")
	flag.DurationVar(&reportFlag, "report", 0, "status line report interval (default: 10s)")
	flag.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	flag.Parse()

	cfg := config.Load(nil)
	if memInfoFlag != "" {
		cfg.MemInfoPath = memInfoFlag
	}
	if procRootFlag != "" {
		cfg.ProcRoot = procRootFlag
	}
	if pollFlag > 0 {
		cfg.PollInterval = pollFlag
	}
	if reportFlag > 0 {
		cfg.ReportInterval = reportFlag
	}
	if debugFlag {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("starting memwatch",
		slog.String("meminfo", cfg.MemInfoPath),
		slog.String("proc_root", cfg.ProcRoot),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Duration("report_interval", cfg.ReportInterval))

	reader := sysinfo.NewReader(cfg.MemInfoPath, cfg.MemInfoBufferBytes, logger)
	defer reader.Close()

	probe := procinfo.NewProbe(cfg.ProcRoot, logger)
	protector := syslimit.NewSelfProtector(logger, cfg.SelfOOMScoreAdj, cfg.SetSelfOOMScoreAdj)

	daemon := app.NewDaemon(app.Dependencies{
		Memory:         reader,
		Processes:      probe,
		Protector:      protector,
		Reporter:       sysinfo.StdoutSink{},
		Logger:         logger,
		PollInterval:   cfg.PollInterval,
		ReportInterval: cfg.ReportInterval,
	})

	ctx, cancel := signalContext()
	defer cancel()

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon terminated", slog.String("error", err.Error()))
		os.Exit(merr.ExitCodeOf(err))
	}
	logger.Info("memwatch stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
