// Package main is the learnpath command line client.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/atinyakov/learnpath/internal/client/app"
	"github.com/atinyakov/learnpath/internal/client/cli"
	"github.com/atinyakov/learnpath/internal/client/cli/formatter"
	"github.com/atinyakov/learnpath/internal/client/storage"
	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/logger"
	"github.com/mattn/go-isatty"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	credPath, err := storage.DefaultPath()
	if err != nil {
		return err
	}

	// Config file next to the saved session unless CONFIG points elsewhere.
	cfg := config.Default()
	cfg.LogLevel = "warn"
	cfg.Config = cmp.Or(os.Getenv("CONFIG"), filepath.Join(filepath.Dir(credPath), "config.json"))
	if err := cfg.LoadFile(cfg.Config); err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.InitConsole(cfg.LogLevel); err != nil {
		return err
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		formatter.DisableColor()
	}

	creds := storage.NewLocalStorage(credPath)
	if err := creds.Load(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, err := app.New(ctx, cfg, nil, log.Log)
	if err != nil {
		return err
	}
	defer engine.Close()

	a := &cli.App{
		Engine:      engine,
		Credentials: creds,
		Config:      cfg,
		Log:         log.Log,
		Version:     fmt.Sprintf("%s (built %s)", cmp.Or(version, "dev"), cmp.Or(buildDate, "N/A")),
		Interactive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
	}

	return cli.NewRootCmd(a).ExecuteContext(ctx)
}
