package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/deepgrid/gpu-bootstrap/internal/config"
)

const usage = `prepare a freshly allocated GPU cloud instance for inference serving.

provision installs the CUDA toolkit and cuDNN and builds the inference
engine from source; fetch downloads the model files; cpus prints the
build parallelism derived from the container CPU allocation.`

func main() {
	app := cli.NewApp()
	app.Name = "gpu-bootstrap"
	app.Usage = usage
	app.Version = fmt.Sprintf("%s (built %s)", config.Version, config.BuildTime)

	app.Commands = []cli.Command{
		provisionCommand,
		fetchCommand,
		cpusCommand,
	}
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
