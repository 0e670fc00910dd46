package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	wampConfig "github.com/wamp3hub/wampytester/config"
)

const VERSION = "0.3.0"

func main() {
	app := &cli.Command{
		Name:  "wampytester",
		Usage: "Publish, subscribe and log WAMP traffic for testing routers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Settings file path",
				Value: defaultSettingsPath(),
			},
			&cli.StringFlag{
				Name:  "log-dir",
				Usage: "Directory of the message log, overrides the settings",
			},
			&cli.IntFlag{
				Name:  "dial-retries",
				Usage: "Retries of a failed router dial",
				Value: 0,
			},
		},
		Commands: []*cli.Command{
			PublishCommand(),
			ScenarioCommand(),
			SubscribeCommand(),
			ServeCommand(),
			SchemaCommand(),
			LogsCommand(),
			VersionCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	e := app.Run(ctx, os.Args)
	if e != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(e.Error()))
		os.Exit(1)
	}
}

func defaultSettingsPath() string {
	path, e := wampConfig.DefaultSettingsPath()
	if e != nil {
		return "wampytester.toml"
	}
	return path
}

func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Println("wampytester " + VERSION)
			return nil
		},
	}
}
