package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/fritz-collector/cmd"
)

func main() {
	app := &cli.App{
		Name:   "fritz-collector",
		Usage:  "collects router, smart plug, speedtest, weather and energy readings into postgres",
		Action: cmd.CollectCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				EnvVars: []string{"ENV_FILE"},
				Value:   ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "collect",
				Usage:  "run the collector until interrupted",
				Action: cmd.CollectCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "env-file",
						EnvVars: []string{"ENV_FILE"},
						Value:   ".env",
					},
				},
			},
			{
				Name:   "healthcheck",
				Usage:  "exit non-zero when the log file is missing or stale",
				Action: cmd.HealthcheckCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "log-file",
						EnvVars: []string{"LOG_FILE"},
						Value:   "/config/fritzbox_collector.log",
					},
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
