// Command web serves the sales dashboard API, the websocket feed and
// Prometheus metrics.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"salesforecast/internal/app"
	"salesforecast/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	os.Exit(run(context.Background(), *configPath))
}

func run(ctx context.Context, configPath string) int {
	defer infrastructure.CloseLogFile()

	application, err := app.New(ctx, configPath)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
