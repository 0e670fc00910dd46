package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	wampConfig "github.com/wamp3hub/wampytester/config"
	wampEngine "github.com/wamp3hub/wampytester/engine"
)

// SchemaCommand prints the JSON schema of the input files
func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "Print the JSON schema of a realms or project file",
		ArgsUsage: "realms|project|request",
		Action: func(ctx context.Context, c *cli.Command) error {
			var schema any
			switch c.Args().First() {
			case "realms":
				schema = wampConfig.RealmsSchema()
			case "project":
				schema = wampEngine.ProjectSchema()
			case "request":
				schema = wampConfig.GenerateJSONSchema[wampEngine.PublishRequest]()
			default:
				return fmt.Errorf("unknown schema %q, expected realms, project or request", c.Args().First())
			}
			data, e := json.MarshalIndent(schema, "", "  ")
			if e != nil {
				return e
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
