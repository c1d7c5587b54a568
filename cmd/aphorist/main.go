package main

import (
	"context"

	"github.com/joho/godotenv"

	"aphorist/internal/app"
	"aphorist/pkg/config"
	"aphorist/pkg/logger"
	"aphorist/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseFlags()
	cfg, err := config.LoadEffective(flags)
	if err != nil {
		logger.Init()
		shutdown.Abort("config load failed", err, "", 0)
	}

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	if buildDate != "unknown" {
		verStr += " @ " + buildDate
	}

	a, err := app.New(cfg, verStr)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.StateDir, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, cfg.Storage.StateDir)
	}
	logger.Info("server_stopped")
}
