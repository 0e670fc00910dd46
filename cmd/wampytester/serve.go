package main

import (
	"context"

	"github.com/urfave/cli/v3"

	wampAPI "github.com/wamp3hub/wampytester/api"
)

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the engine over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Address to listen on, overrides the settings",
			},
			&cli.IntFlag{
				Name:  "history",
				Usage: "Number of recent events kept for /v1/events",
				Value: wampAPI.DEFAULT_HISTORY_SIZE,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			history := wampAPI.NewHistory(int(c.Int("history")))
			instance, e := startRuntime(ctx, c)
			if e != nil {
				return e
			}
			defer instance.Close()

			address := instance.settings.Listen
			if len(c.String("listen")) > 0 {
				address = c.String("listen")
			}
			handler := wampAPI.NewHandler(instance.engine, history, instance.logger)
			return wampAPI.ListenAndServe(ctx, address, handler.Routes(), instance.logger)
		},
	}
}
