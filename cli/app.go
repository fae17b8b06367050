// Package cli contains the trajctl command line: running a controller against simulated hardware
// and previewing trajectories.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig        = "config"
	flagDebug         = "debug"
	flagTrajectory    = "trajectory"
	flagBag           = "bag"
	flagTopic         = "topic"
	flagStep          = "step"
	flagInterpolation = "interpolation"
	flagPlot          = "plot"
	flagLogFile       = "log-file"

	defaultTopic = "/joint_trajectory"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "trajctl",
		Usage:           "run and inspect joint trajectory controllers",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run a controller against simulated hardware and serve it over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagLogFile,
						Usage: "also write logs to `FILE`, rotated as it grows",
					},
				},
				Action: RunAction,
			},
			{
				Name:  "validate",
				Usage: "check a configuration file and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
				},
				Action: ValidateAction,
			},
			{
				Name:  "sample",
				Usage: "print the commands a trajectory produces over time",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagTrajectory,
						Usage: "JSON JointTrajectory `FILE`",
					},
					&cli.StringFlag{
						Name:  flagBag,
						Usage: "rosbag `FILE` holding JointTrajectory messages",
					},
					&cli.StringFlag{
						Name:  flagTopic,
						Value: defaultTopic,
						Usage: "bag topic to read",
					},
					&cli.DurationFlag{
						Name:  flagStep,
						Value: defaultStep,
						Usage: "time between samples",
					},
					&cli.StringFlag{
						Name:  flagInterpolation,
						Value: "auto",
						Usage: "auto, cubic or quintic",
					},
					&cli.StringFlag{
						Name:  flagPlot,
						Usage: "also plot joint positions to `FILE` (.png, .svg or .pdf)",
					},
				},
				Action: SampleAction,
			},
		},
	}
}
