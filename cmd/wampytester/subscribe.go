package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/urfave/cli/v3"

	wampConfig "github.com/wamp3hub/wampytester/config"
)

// SubscribeCommand creates the subscribe command
func SubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to topics and log every event until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "realm",
				Usage:    "Realm to subscribe in",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "topic",
				Usage: "Topic URI, repeatable, defaults to the realms file topics",
			},
			&cli.StringFlag{
				Name:  "router",
				Usage: "Router URL, defaults to the realms file entry",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Resubscribe when the realm entry of the realms file changes",
			},
		},
		Action: subscribe,
	}
}

func subscribe(ctx context.Context, c *cli.Command) error {
	view := newConsole(os.Stdout)
	instance, e := startRuntime(ctx, c, view)
	if e != nil {
		return e
	}
	defer instance.Close()

	realm := c.String("realm")
	routerURL, e := instance.routerURL(realm, c.String("router"))
	if e != nil {
		return e
	}
	topics := c.StringSlice("topic")
	if len(topics) == 0 {
		config, found := instance.realms.Lookup(realm)
		if found {
			topics = config.Topics
		}
	}
	e = instance.engine.StartSubscription(ctx, realm, routerURL, topics, view.Callback)
	if e != nil {
		return e
	}

	if c.Bool("watch") {
		if len(instance.settings.RealmsFile) == 0 {
			return fmt.Errorf("--watch needs realms_file in the settings")
		}
		current := topics
		e = wampConfig.Watch(ctx, instance.settings.RealmsFile, func(realms *wampConfig.RealmsFile) {
			config, found := realms.Lookup(realm)
			if !found || len(config.Topics) == 0 {
				instance.logger.Warn("realm missing from realms file, keeping subscription", "realm", realm)
				return
			}
			nextURL := routerURL
			if len(c.String("router")) == 0 && len(config.RouterURL) > 0 {
				nextURL = config.RouterURL
			}
			if nextURL == routerURL && slices.Equal(config.Topics, current) {
				return
			}
			instance.engine.LoadRealms(realms)
			e := instance.engine.StartSubscription(ctx, realm, nextURL, config.Topics, view.Callback)
			if e != nil {
				instance.logger.Error("during resubscribe", "error", e)
				return
			}
			routerURL = nextURL
			current = append([]string(nil), config.Topics...)
		}, instance.logger)
		if e != nil {
			return fmt.Errorf("watching realms file: %w", e)
		}
	}

	fmt.Println(metaStyle.Render("listening, press Ctrl-C to stop"))
	<-ctx.Done()
	return nil
}
