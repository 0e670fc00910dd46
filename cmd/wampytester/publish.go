package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	wampEngine "github.com/wamp3hub/wampytester/engine"
)

// PublishCommand creates the publish command
func PublishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish one payload to a topic",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "realm",
				Usage:    "Realm to publish in",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "topic",
				Usage:    "Topic URI",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "payload",
				Usage: "JSON payload",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "router",
				Usage: "Router URL, defaults to the realms file entry",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "OnDemand, Programmed or SystemTime",
				Value: wampEngine.OnDemand.String(),
			},
			&cli.StringFlag{
				Name:  "time",
				Usage: "H:M:S delay for Programmed, wall clock for SystemTime",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			mode, e := wampEngine.ParseMode(c.String("mode"))
			if e != nil {
				return e
			}
			request := wampEngine.NewPublishRequest(
				c.String("realm"),
				c.String("topic"),
				json.RawMessage(c.String("payload")),
				mode,
				c.String("time"),
			)
			return publish(ctx, c, c.String("router"), []*wampEngine.PublishRequest{request})
		},
	}
}

// publish runs requests through a fresh engine and waits for every outcome
func publish(ctx context.Context, c *cli.Command, explicitRouter string, requests []*wampEngine.PublishRequest) error {
	view := newConsole(os.Stdout)
	instance, e := startRuntime(ctx, c, view)
	if e != nil {
		return e
	}
	defer instance.Close()

	realms := make(map[string]bool)
	for _, request := range requests {
		if realms[request.Realm] {
			continue
		}
		realms[request.Realm] = true
		routerURL, e := instance.routerURL(request.Realm, explicitRouter)
		if e != nil {
			return e
		}
		_, e = instance.engine.StartPublisherSession(request.Realm, routerURL)
		if e != nil {
			return e
		}
	}

	accepted := 0
	rejected := 0
	for _, request := range requests {
		e = instance.engine.SubmitPublish(request)
		if e != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(e.Error()))
			rejected++
			continue
		}
		accepted++
	}

	for i := 0; i < accepted; i++ {
		select {
		case <-view.outcomes:
		case <-ctx.Done():
			return nil
		}
	}
	sent, failed := view.counts()
	fmt.Println(metaStyle.Render(fmt.Sprintf("%d sent, %d failed, log %s", sent, failed, instance.engine.LogPath())))
	if failed+rejected > 0 {
		return fmt.Errorf("%d of %d publications failed", failed+rejected, len(requests))
	}
	return nil
}
