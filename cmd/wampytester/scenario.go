package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	wampEngine "github.com/wamp3hub/wampytester/engine"
)

// ScenarioCommand creates the scenario command
func ScenarioCommand() *cli.Command {
	return &cli.Command{
		Name:      "scenario",
		Usage:     "Run the publish scenarios and subscriptions of a project file",
		ArgsUsage: "<project.json>",
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("expected one project file")
			}
			project, e := wampEngine.LoadProject(c.Args().First())
			if e != nil {
				return e
			}
			return runScenario(ctx, c, project)
		},
	}
}

// runScenario waits for every scenario outcome and keeps subscriptions alive until interrupted
func runScenario(ctx context.Context, c *cli.Command, project *wampEngine.Project) error {
	view := newConsole(os.Stdout)
	instance, e := startRuntime(ctx, c, view)
	if e != nil {
		return e
	}
	defer instance.Close()

	accepted, e := project.Apply(ctx, instance.engine, view.Callback)
	if e != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(e.Error()))
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

	if len(project.Subscriber.Realms) > 0 {
		fmt.Println(metaStyle.Render("listening, press Ctrl-C to stop"))
		<-ctx.Done()
	}
	return nil
}
