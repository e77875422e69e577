package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/deepgrid/gpu-bootstrap/internal/bootstrap"
	"github.com/deepgrid/gpu-bootstrap/internal/cgroup"
	"github.com/deepgrid/gpu-bootstrap/internal/config"
	"github.com/deepgrid/gpu-bootstrap/internal/parallel"
	"github.com/deepgrid/gpu-bootstrap/internal/sysinfo"
)

var provisionCommand = cli.Command{
	Name:  "provision",
	Usage: "install the CUDA stack and build the inference engine from source",
	Action: func(c *cli.Context) error {
		app, ctx, cancel, err := setup(c)
		if err != nil {
			return err
		}
		defer cancel()
		return app.Provision(ctx)
	},
}

var fetchCommand = cli.Command{
	Name:  "fetch",
	Usage: "download the model files listed in the manifest",
	Action: func(c *cli.Context) error {
		app, ctx, cancel, err := setup(c)
		if err != nil {
			return err
		}
		defer cancel()
		return app.FetchModels(ctx)
	},
}

var cpusCommand = cli.Command{
	Name:  "cpus",
	Usage: "print the build parallelism for this machine's CPU allocation",
	Action: func(c *cli.Context) error {
		lim, err := cgroup.NewProbe().Detect()
		if err != nil {
			return fmt.Errorf("detect cpu limit: %w", err)
		}
		workers, err := parallel.Resolve(lim, sysinfo.HostCores())
		if err != nil {
			return fmt.Errorf("resolve parallelism: %w", err)
		}
		fmt.Println(workers)
		return nil
	},
}

// setup loads configuration, builds the logger and a signal-aware
// context, and wires the application.
func setup(c *cli.Context) (*bootstrap.App, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	if c.GlobalBool("debug") {
		cfg.Debug = true
	}

	logger, err := config.NewLogger(cfg, "gpu-bootstrap")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger error: %w", err)
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)

	return bootstrap.New(cfg, logger), ctx, cancel, nil
}
