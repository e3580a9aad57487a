package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/source"
)

// CurrentCommand queries the configured theme source once.
func CurrentCommand() *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "Print the current system theme",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print the bare theme name",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			styled := !c.Bool("raw") && isTerminal(os.Stdout)
			return showCurrent(os.Stdout, cfg, styled)
		},
	}
}

func showCurrent(w io.Writer, cfg *config.Config, styled bool) error {
	src, err := source.New(cfg.SourceOptions())
	if err != nil {
		return err
	}
	t, err := src.Current()
	if err != nil {
		return fmt.Errorf("reading current theme: %w", err)
	}
	if !styled {
		_, _ = fmt.Fprintln(w, t)
		return nil
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", metaStyle.Render("Current theme:"), renderTheme(t))
	return nil
}
