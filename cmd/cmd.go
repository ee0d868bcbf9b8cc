// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the HTTP backend
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the stash HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (overrides config)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse stash history in an interactive terminal UI",
		Action: r.TUI,
	}
}

// recognizeCommand identifies a song without saving it
func recognizeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "recognize",
		Aliases: []string{"rec"},
		Usage:   "Identify the song in a shared video link",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "url",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Base URL of a stash backend to ask instead of recognizing locally",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
		},
		Action: r.Recognize,
	}
}

// stashCommand identifies a song and saves it to Spotify and history
func stashCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stash",
		Usage: "Identify the song in a link and save it to Spotify",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "url",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "Playlist id (\"1\" for Liked Songs, \"smart_sort\" to sort by genre)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Save the top match without asking",
			},
		},
		Action: r.Stash,
	}
}

func saveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "save",
		Usage: "Save a Spotify track id to a playlist",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "track-id",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "Playlist id (\"1\" for Liked Songs, \"smart_sort\" to sort by genre)",
			},
			&cli.StringFlag{
				Name:  "remote",
				Usage: "Base URL of a stash backend to save through",
			},
		},
		Action: r.Save,
	}
}

func vibeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "vibe",
		Usage: "Describe the vibe of your recent stashes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Vibe,
	}
}

// importCommand stashes every link in a file
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Stash every link in a file (one per line, \"-\" for stdin)",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "file",
			},
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Links processed concurrently (overrides config)",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Links started per second (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "accept-top",
				Usage: "Save the top match even below the confidence threshold",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Recognize only, never save",
			},
			&cli.StringFlag{
				Name:  "playlist",
				Usage: "Playlist id to save into",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the summary as JSON",
			},
		},
		Action: r.Import,
	}
}

// historyCommand lists, deletes and exports stashed songs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Stashed song history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stashed songs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of songs to show",
						Value:   50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "delete",
				Usage: "Remove a song from history",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.HistoryDelete,
			},
			{
				Name:  "export",
				Usage: "Export history to csv, md, txt or json",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, md, txt, json)",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (\"-\" for stdout)",
					},
				},
				Action: r.HistoryExport,
			},
		},
	}
}

func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show listening statistics and achievements",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "card",
				Usage: "Render a shareable stats card",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name shown on the stats card",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Stats,
	}
}

func prefsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "prefs",
		Aliases: []string{"preferences"},
		Usage:   "Show or change preferences",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show current preferences",
				Action: r.PrefsShow,
			},
			{
				Name:  "set",
				Usage: "Change preferences",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "auto-add",
						Usage: "Save the top match without confirmation",
					},
					&cli.StringFlag{
						Name:  "playlist",
						Usage: "Default playlist id",
					},
					&cli.StringFlag{
						Name:  "theme",
						Usage: "UI theme (light or dark)",
					},
				},
				Action: r.PrefsSet,
			},
		},
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Account authentication",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "status",
				Usage: "Show authentication and backend status",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "remote",
						Usage: "Base URL of a stash backend to check",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:  "playlists",
				Usage: "List playlists you can stash into",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyPlaylists,
			},
		},
	}
}

func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Recognition cache maintenance",
		Commands: []*cli.Command{
			{
				Name:  "purge",
				Usage: "Remove cached recognitions",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Only remove entries older than this (0 removes everything)",
					},
				},
				Action: r.CachePurge,
			},
		},
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the latest migration",
				Action: r.SetupRollback,
			},
			{
				Name:   "check",
				Usage:  "Check external binaries and credentials",
				Action: r.SetupCheck,
			},
		},
	}
}
