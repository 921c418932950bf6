package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/gyaneshwarpardhi/scoutcue/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "scoutcue:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "scoutcue",
		Usage: "play sound cues for in-match events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "settings YAML file",
				EnvVars: []string{"SCOUTCUE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "pack",
				Usage: "sound pack file (overrides pack.path)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			previewCommand(),
			prewarmCommand(),
			validateCommand(),
		},
	}
}

// loadSettings reads settings and applies the global flag overrides.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	s, err := config.LoadSettings(c.String("config"))
	if err != nil {
		return nil, err
	}
	if p := c.String("pack"); p != "" {
		s.Pack.Path = p
	}
	return s, nil
}

func newLogger(s *config.Settings) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(s.Log.Level))
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
