package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/chattrivia/internal/config"
	"github.com/victornm/chattrivia/internal/server"
)

func main() {
	setupLogger(os.Getenv("LOG_LEVEL"))

	c, err := loadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fatal("load config failed", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	s, err := server.Init(c)
	if err != nil {
		fatal("init server failed", err)
	}

	go s.Start()

	<-ctx.Done()
	s.Shutdown()
}

func loadConfig(p string) (server.Config, error) {
	c := server.DefaultConfig()

	if p == "" {
		return c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func fatal(msg string, err error) {
	slog.Error("main: "+msg, "error", err)
	os.Exit(1)
}
