// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// newApp builds the root command. Global flags are read once by the Before hook.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotbak",
		Usage:   "Back up Spotify playlists to Dropbox as CSV snapshots",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
				Local: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Read from Spotify and Dropbox but never write to Dropbox",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// backupCommand writes full snapshots
func backupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write a full CSV snapshot of every playlist, or of one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Back up only the playlist with this exact name or ID",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output results as JSON",
			},
		},
		Action: r.Backup,
	}
}

// syncCommand rewrites snapshots that gained tracks
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Update snapshots of playlists that have new tracks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Sync only the playlist with this exact name or ID",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output results as JSON",
			},
		},
		Action: r.Sync,
	}
}

func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List Spotify playlists",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Show playlist IDs and owners",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output playlists as JSON",
			},
		},
		Action: r.List,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the snapshots stored in Dropbox",
		Action: r.Status,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:   "spotify",
				Usage:  "Authorize Spotify through the browser",
				Action: r.AuthSpotify,
			},
			{
				Name:   "dropbox",
				Usage:  "Authorize Dropbox by pasting an authorization code",
				Action: r.AuthDropbox,
			},
			{
				Name:  "status",
				Usage: "Show which services have stored tokens",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "check",
						Usage: "Call both APIs and print the linked account names",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write a config file from the built-in template",
		Action: r.Init,
	}
}
