package cmd

import (
	"context"

	"github.com/templui/pixelplan/internal/app"
	"github.com/templui/pixelplan/internal/config"
	"github.com/templui/pixelplan/internal/logger"
)

// withApp loads configuration, wires the application and closes it after fn.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg := config.Load()
	logger.Init(logger.Options{AppName: cfg.AppName + "-ctl", Environment: cfg.AppEnv, Level: cfg.LogLevel, SentryDSN: cfg.SentryDSN})
	defer logger.Flush()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
