package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	wampLogSink "github.com/wamp3hub/wampytester/logsink"
)

// LogsCommand groups the message log maintenance commands
func LogsCommand() *cli.Command {
	return &cli.Command{
		Name:  "logs",
		Usage: "Inspect and archive message logs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the message logs of the log directory",
				Action: func(ctx context.Context, c *cli.Command) error {
					settings, e := loadSettings(c)
					if e != nil {
						return e
					}
					paths, e := wampLogSink.List(settings.LogDir)
					if e != nil {
						return fmt.Errorf("listing logs: %w", e)
					}
					for _, path := range paths {
						document, e := wampLogSink.Load(path)
						if e != nil {
							fmt.Println(errorStyle.Render(filepath.Base(path)), e)
							continue
						}
						fmt.Printf("%s %s\n", filepath.Base(path), metaStyle.Render(fmt.Sprintf("%d messages", len(document.MessageList))))
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print the messages of one log",
				ArgsUsage: "<path>",
				Action: func(ctx context.Context, c *cli.Command) error {
					document, e := wampLogSink.Load(c.Args().First())
					if e != nil {
						return e
					}
					for _, entry := range document.MessageList {
						fmt.Fprintf(
							os.Stdout, "%s %s %s\n",
							metaStyle.Render(entry.Timestamp.Date+" "+entry.Timestamp.Time),
							metaStyle.Render(entry.Realm+" "+entry.Topic),
							render(entry.Payload),
						)
					}
					return nil
				},
			},
			{
				Name:  "archive",
				Usage: "Compress every message log except the newest",
				Action: func(ctx context.Context, c *cli.Command) error {
					settings, e := loadSettings(c)
					if e != nil {
						return e
					}
					paths, e := wampLogSink.List(settings.LogDir)
					if e != nil {
						return fmt.Errorf("listing logs: %w", e)
					}
					keep := ""
					if len(paths) > 0 {
						keep = paths[len(paths)-1]
					}
					archived, e := wampLogSink.Archive(settings.LogDir, keep)
					for _, path := range archived {
						fmt.Println(statusStyle.Render("archived"), filepath.Base(path))
					}
					return e
				},
			},
		},
	}
}
