package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/kwv/posecal/calib"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile       string
	DataFile         string
	Mode             string
	Name             string
	CalibrationCache string
	RenderOutput     string
	PlotOutput       string
	MqttMode         bool
	MaxAge           time.Duration
}

// Runner is what the command line dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunRigid() error
	RunRobust() error
	RunRefine() error
	RunToolTip() error
	RunPlanar() error
	RunStatus() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("posecal", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataFile, "data", "", "Path to dataset YAML (point pairs or tracker poses)")
	fs.StringVar(&opts.Mode, "mode", "robust", "Estimation mode: rigid, robust, refine, tooltip, planar or status")
	fs.StringVar(&opts.Name, "name", "", "Result name (default: dataset name)")
	fs.StringVar(&opts.CalibrationCache, "cache", calib.DefaultCalibrationCachePath, "Path to result cache file (empty disables)")
	fs.StringVar(&opts.RenderOutput, "render", "", "Write an alignment overlay to this .svg or .png file")
	fs.StringVar(&opts.PlotOutput, "plot", "", "Write a per-item residual plot to this .png, .svg or .pdf file")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish the result over MQTT")
	fs.DurationVar(&opts.MaxAge, "max-age", 24*time.Hour, "Age after which status reports a result as stale")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "posecal version: %s\n", Version)
	app.ApplyOptions(opts)

	switch opts.Mode {
	case "rigid":
		return app.RunRigid()
	case "robust":
		return app.RunRobust()
	case "refine":
		return app.RunRefine()
	case "tooltip":
		return app.RunToolTip()
	case "planar":
		return app.RunPlanar()
	case "status":
		return app.RunStatus()
	default:
		return fmt.Errorf("unknown mode %q (want rigid, robust, refine, tooltip, planar or status)", opts.Mode)
	}
}
