package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"dataresource/internal/app"
	"dataresource/internal/config"
	"dataresource/internal/logging"
)

var version = "dev"

// application is built in Before and shared by every command.
var application *app.App

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cliApp := &cli.App{
		Name:    "dataresource",
		Usage:   "describe, read, validate and catalog tabular data resources",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"DATARESOURCE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log.level)",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "log JSON lines to stderr instead of the console format",
			},
			&cli.BoolFlag{
				Name:  "trusted",
				Usage: "allow absolute and parent-escaping paths in descriptors",
			},
		},
		Before: setup,
		// exit codes are handled below so After still runs
		ExitErrHandler: func(*cli.Context, error) {},
		After: func(c *cli.Context) error {
			if application != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				application.Shutdown(shutdownCtx)
			}
			return nil
		},
		Commands: []*cli.Command{
			describeCommand(),
			extractCommand(),
			inferCommand(),
			validateCommand(),
			convertCommand(),
			transformCommand(),
			catalogCommand(),
			watchCommand(),
			mcpCommand(),
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			if msg := ec.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(ec.ExitCode())
		}
		log.Error().Err(err).Msg("dataresource failed")
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if c.Bool("log-json") {
		cfg.Log.JSON = true
	}
	if c.Bool("trusted") {
		cfg.Trusted = true
	}

	if _, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		JSON:       cfg.Log.JSON,
	}); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	application = app.New(cfg)
	return application.Startup(c.Context)
}
