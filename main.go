package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cnosuke/pagemirror/config"
	"github.com/cnosuke/pagemirror/fetcher"
	"github.com/cnosuke/pagemirror/logger"
	"github.com/cnosuke/pagemirror/mirror"
	"github.com/cnosuke/pagemirror/server"
	"github.com/cnosuke/pagemirror/types"
)

var (
	// Version and Revision are replaced when building.
	Version  = "0.0.1"
	Revision = "xxx"

	appName = "pagemirror"
	usage   = "Mirror a single web page and the resources it references"
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = usage
	app.Version = fmt.Sprintf("%s (%s)", Version, Revision)
	app.ArgsUsage = "<url>"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "directory that receives the {host}_files mirror root",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}

	app.Action = runMirror
	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "Run the MCP server over stdio",
			Action: func(c *cli.Context) error {
				cfg, err := setup(c)
				if err != nil {
					return err
				}
				defer zap.S().Sync()
				return server.Run(cfg, appName, Version, Revision)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration, applies flag overrides and installs the
// global logger.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if c.IsSet("output") {
		cfg.Mirror.OutputDir = c.String("output")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}

	if _, err := logger.InitLogger(cfg.Debug, cfg.Log); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	return cfg, nil
}

func runMirror(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: %s [options] <url>", appName), 2)
	}

	cfg, err := setup(c)
	if err != nil {
		return err
	}
	defer zap.S().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpFetcher, err := fetcher.NewHTTPFetcher(&fetcher.Config{
		Timeout:     cfg.Fetch.Timeout,
		UserAgent:   cfg.Fetch.UserAgent,
		MaxBodySize: cfg.Fetch.MaxBodySize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create fetcher")
	}

	m := mirror.New(httpFetcher, &mirror.Config{
		MaxWorkers: cfg.Fetch.MaxWorkers,
		EntryFile:  cfg.Mirror.EntryFile,
		OnTransition: func(job *types.MirrorJob, from, to mirror.State) {
			zap.S().Debugw("progress", "url", job.RootURL, "state", to.String())
		},
	})

	job, err := mirror.NewJob(c.Args().First(), cfg.Mirror.OutputDir)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	result, err := m.Run(ctx, job)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), 1)
	}

	fmt.Printf("Mirror completed! Files saved in: %s\n", result.Root)
	return nil
}
