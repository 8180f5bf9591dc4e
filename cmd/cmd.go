// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/cadence/internal/formatter"
	"github.com/urfave/cli/v3"
)

// globalFlags are shared by every command.
func (r *Runner) globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve prometheus metrics on this address (overrides metrics.addr)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error (overrides log.level)",
		},
	}
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: txt, json, csv or markdown",
		Value:   string(formatter.FormatText),
	}
}

func outputFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the rendered tracks to this file instead of stdout",
	}
}

// setupCommand writes a config file and bootstraps the library database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the library database",
		Action: r.Setup,
	}
}

// importCommand imports audio files and directories.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import audio files or directories into the library",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "copy",
				Usage: "Copy imported files under the library root (overrides library.copy_on_import)",
			},
			&cli.BoolFlag{
				Name:  "no-preload",
				Usage: "Skip counting files first; progress is shown without a total",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Monitor the import in the interactive terminal UI",
			},
		},
		Action: r.Import,
	}
}

// listCommand renders the in-memory library.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List every track in the library",
		Flags:   []cli.Flag{formatFlag(), outputFlag()},
		Action:  r.List,
	}
}

// queryCommand streams the tracks selected by an SQL query.
func queryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Load the tracks selected by an SQL SELECT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "sql",
				Usage:    "SELECT statement over the Tracks table",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "count",
				Usage: "Statement returning the row count (derived from --sql when omitted)",
			},
			formatFlag(),
			outputFlag(),
		},
		Action: r.Query,
	}
}

// playlistCommand handles playlist operations
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "save",
				Usage: "Create or replace a playlist with the given tracks, in order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Playlist name",
						Required: true,
					},
					&cli.Int64SliceFlag{
						Name:     "track",
						Aliases:  []string{"t"},
						Usage:    "Track ID (repeatable)",
						Required: true,
					},
				},
				Action: r.PlaylistSave,
			},
			{
				Name:  "remove",
				Usage: "Remove tracks from a playlist",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "playlist",
						Aliases:  []string{"p"},
						Usage:    "Playlist ID",
						Required: true,
					},
					&cli.Int64SliceFlag{
						Name:     "track",
						Aliases:  []string{"t"},
						Usage:    "Track ID (repeatable)",
						Required: true,
					},
				},
				Action: r.PlaylistRemove,
			},
			{
				Name:  "show",
				Usage: "Render a playlist's tracks in order",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "playlist",
						Aliases:  []string{"p"},
						Usage:    "Playlist ID",
						Required: true,
					},
					formatFlag(),
					outputFlag(),
				},
				Action: r.PlaylistShow,
			},
		},
	}
}

// removeCommand deletes tracks from the library.
func removeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "remove",
		Aliases: []string{"rm"},
		Usage:   "Remove tracks from the library and from every playlist",
		Flags: []cli.Flag{
			&cli.Int64SliceFlag{
				Name:     "track",
				Aliases:  []string{"t"},
				Usage:    "Track ID (repeatable)",
				Required: true,
			},
		},
		Action: r.Remove,
	}
}
