package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bryanwahyu/sentiment-api/internal/app"
	"github.com/bryanwahyu/sentiment-api/internal/config"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	// log ke stderr supaya stdout tetap JSON bersih
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(1)
	}

	cliApp := newCLIApp(a)
	runErr := cliApp.Run(os.Args)
	_ = a.Close()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
