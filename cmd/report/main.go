// Package main prints a weather report for a coordinate, the same report a
// chat user receives. Useful for checking provider keys and templates.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/garyellow/wxbot-go/internal/config"
	"github.com/garyellow/wxbot-go/internal/geo"
	"github.com/garyellow/wxbot-go/internal/logger"
	"github.com/garyellow/wxbot-go/internal/pipeline"
)

type cli struct {
	Lat          float64 `help:"Latitude in degrees (-90..90)." required:""`
	Lon          float64 `help:"Longitude in degrees (-180..180)." required:""`
	Lang         string  `help:"Report language (e.g. en, ru). Defaults to WXBOT_DEFAULT_LANGUAGE."`
	Requester    string  `help:"Name shown in the report header." default:"cli"`
	ForecastOnly bool    `help:"Print only the short forecast." name:"forecast-only"`
	ShowMap      bool    `help:"Print the static map URL after the report." name:"show-map"`
}

func main() {
	var args cli
	kctx := kong.Parse(&args,
		kong.Name("wxbot-report"),
		kong.Description("Build a weather report for a coordinate and print it."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(run(args))
}

func run(args cli) error {
	cfg, err := config.LoadForMode(config.CLIMode)
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(cfg.LogLevel, os.Stderr)

	svc, err := pipeline.FromConfig(cfg, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args.ForecastOnly {
		coord, err := geo.NewCoordinate(args.Lat, args.Lon)
		if err != nil {
			return err
		}
		rep := svc.ForecastReport(ctx, coord, args.Requester, args.Lang)
		_, err = fmt.Fprintln(os.Stdout, rep.Text)
		return err
	}

	rep, _, err := svc.Report(ctx, pipeline.Request{
		Latitude:  args.Lat,
		Longitude: args.Lon,
		Requester: args.Requester,
		Language:  args.Lang,
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(os.Stdout, rep.Text); err != nil {
		return err
	}
	if args.ShowMap && rep.MapURL != "" {
		_, err = fmt.Fprintln(os.Stdout, rep.MapURL)
	}
	return err
}
