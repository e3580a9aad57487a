package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/theme-switcher/cmd"
	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/version"
)

func main() {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
			Value: false,
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file path",
			Value:   getDefaultConfigPathOrExit(),
		},
	}

	app := &cli.Command{
		Name:    "theme-switcher",
		Usage:   "Run scripts and notify editors when the system theme changes",
		Version: version.Version,
		Flags:   append(flags, cmd.RunFlags()...),
		Action:  cmd.RunAction,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.WatchCommand(),
			cmd.CurrentCommand(),
			cmd.InitCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		log.Fatalf("Failed to get default config path: %v", err)
	}
	return path
}
