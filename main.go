package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/text"
	"github.com/mrnavastar/mclaunch/rpc"
	"github.com/mrnavastar/mclaunch/services"
	"github.com/mrnavastar/mclaunch/util"
	"github.com/mrnavastar/mclaunch/util/config"
	"github.com/mrnavastar/mclaunch/util/errs"
	"github.com/mrnavastar/mclaunch/util/fileutils"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mclaunch",
		Usage: "Install and launch Minecraft versions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "launcher configuration file",
				EnvVars: []string{"MCLAUNCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warn or error",
				EnvVars: []string{"MCLAUNCH_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Setup mclaunch for a minecraft folder",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					path := c.Args().Get(0)
					if path == "" {
						return errs.New(errs.KindInvalidArgument, "", "a minecraft folder is required")
					}
					abs, err := filepath.Abs(path)
					if err != nil {
						return err
					}
					if err := fileutils.Setup(abs); err != nil {
						return err
					}
					fmt.Println("Using " + abs)
					fmt.Println("Done.")
					return nil
				},
			},
			{
				Name:    "ls",
				Aliases: []string{"versions"},
				Usage:   "List installed versions",
				Action: action(func(c *cli.Context, l *launcher) error {
					var versions []rpc.InstalledVersion
					if err := l.call(c.Context, "client.get-installed", nil, &versions); err != nil {
						return err
					}
					rows := make([][]string, 0, len(versions))
					for _, v := range versions {
						rows = append(rows, []string{v.Id, v.MinecraftVersion, string(v.Loader), strings.Join(v.Inheritances, " > ")})
					}
					printTable([]string{"ID", "MINECRAFT", "LOADER", "INHERITS"}, rows)
					return nil
				}),
			},
			{
				Name:  "manifest",
				Usage: "List versions available from Mojang",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Value: "release", Usage: "release, snapshot, old_beta or old_alpha; empty for all"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: action(func(c *cli.Context, l *launcher) error {
					var manifest util.VersionManifest
					if err := l.call(c.Context, "client.get-version-manifest", map[string]string{"type": c.String("type")}, &manifest); err != nil {
						return err
					}
					fmt.Println("Latest release: " + text.Bold.Sprint(manifest.Latest.Release))
					fmt.Println("Latest snapshot: " + text.Bold.Sprint(manifest.Latest.Snapshot))
					versions := manifest.Versions
					if limit := c.Int("limit"); limit > 0 && len(versions) > limit {
						versions = versions[:limit]
					}
					rows := make([][]string, 0, len(versions))
					for _, v := range versions {
						rows = append(rows, []string{v.Id, v.Type, v.ReleaseTime})
					}
					printTable([]string{"ID", "TYPE", "RELEASED"}, rows)
					return nil
				}),
			},
			{
				Name:      "artifacts",
				Usage:     "List loader versions for a game version",
				ArgsUsage: "<gameVersion>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "loader", Value: string(util.LoaderFabric)},
				},
				Action: action(func(c *cli.Context, l *launcher) error {
					var artifacts []util.LoaderArtifact
					args := map[string]string{"loader": c.String("loader"), "gameVersion": c.Args().Get(0)}
					if err := l.call(c.Context, "client.get-loader-artifacts", args, &artifacts); err != nil {
						return err
					}
					rows := make([][]string, 0, len(artifacts))
					for _, a := range artifacts {
						rows = append(rows, []string{a.Version, strconv.FormatBool(a.Stable), a.Maven})
					}
					printTable([]string{"VERSION", "STABLE", "MAVEN"}, rows)
					return nil
				}),
			},
			{
				Name:      "install",
				Usage:     "Install a version, optionally with a mod loader",
				ArgsUsage: "<minecraftVersion|latest> [targetId]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "loader", Usage: "fabric or quilt"},
					&cli.StringFlag{Name: "loader-version", Usage: "defaults to the latest stable loader"},
				},
				Action: action(func(c *cli.Context, l *launcher) error {
					return l.install(c.Context, map[string]string{
						"targetId":       c.Args().Get(1),
						"vanillaVersion": c.Args().Get(0),
						"loader":         c.String("loader"),
						"loaderVersion":  c.String("loader-version"),
					})
				}),
			},
			{
				Name:      "launch",
				Aliases:   []string{"play"},
				Usage:     "Launch an installed version",
				ArgsUsage: "<versionId>",
				Action: action(func(c *cli.Context, l *launcher) error {
					var result services.LaunchResult
					if err := l.call(c.Context, "client.launch", map[string]string{"version": c.Args().Get(0)}, &result); err != nil {
						return err
					}
					mode := "online"
					if result.Offline {
						mode = "offline"
					}
					fmt.Printf("Launched %s as %s (%s, pid %d)\n", text.Bold.Sprint(result.Version), result.Player, mode, result.Pid)
					return nil
				}),
			},
			{
				Name:      "login",
				Usage:     "Sign in to a Mojang account",
				ArgsUsage: "<username> <password>",
				Action: action(func(c *cli.Context, l *launcher) error {
					var result util.LoginResult
					args := map[string]string{"username": c.Args().Get(0), "password": c.Args().Get(1)}
					if err := l.call(c.Context, "auth.login", args, &result); err != nil {
						return err
					}
					if result.User != nil {
						fmt.Println("Signed in as " + text.Bold.Sprint(result.User.Name))
					}
					if result.HasMultipleProfiles {
						fmt.Printf("%d profiles are available on this account\n", len(result.AvailableProfiles))
					}
					return nil
				}),
			},
			{
				Name:  "logout",
				Usage: "Sign out and forget the stored token",
				Action: action(func(c *cli.Context, l *launcher) error {
					if err := l.call(c.Context, "auth.invalidate", nil, nil); err != nil {
						return err
					}
					fmt.Println("Signed out.")
					return nil
				}),
			},
			{
				Name:  "session",
				Usage: "Show the current sign-in state",
				Action: action(func(c *cli.Context, l *launcher) error {
					var session util.Session
					if err := l.call(c.Context, "auth.session", nil, &session); err != nil {
						return err
					}
					if !session.SignedIn || session.Profile == nil {
						fmt.Println("Not signed in.")
						return nil
					}
					fmt.Println("Signed in as " + text.Bold.Sprint(session.Profile.Name) + " (" + session.Profile.Id + ")")
					return nil
				}),
			},
			{
				Name:      "lookup",
				Usage:     "Show the public profile of a player",
				ArgsUsage: "<uuid>",
				Action: action(func(c *cli.Context, l *launcher) error {
					var profile util.PublicProfile
					if err := l.call(c.Context, "auth.lookup", map[string]string{"uuid": c.Args().Get(0)}, &profile); err != nil {
						return err
					}
					fmt.Println(text.Bold.Sprint(profile.Name) + " " + profile.Id)
					if profile.Textures != nil && profile.Textures.Skin != nil {
						fmt.Println("Skin: " + text.Underline.Sprint(profile.Textures.Skin.Url))
					}
					if profile.Textures != nil && profile.Textures.Cape != nil {
						fmt.Println("Cape: " + text.Underline.Sprint(profile.Textures.Cape.Url))
					}
					return nil
				}),
			},
			{
				Name:      "texture",
				Usage:     "Upload or reset a skin or cape",
				ArgsUsage: "<skin|cape> [url]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "variant", Usage: "classic or slim"},
					&cli.BoolFlag{Name: "reset"},
				},
				Action: action(func(c *cli.Context, l *launcher) error {
					option := util.TextureOption{
						Type:    c.Args().Get(0),
						Url:     c.Args().Get(1),
						Variant: c.String("variant"),
						Reset:   c.Bool("reset"),
					}
					if err := l.call(c.Context, "auth.set-texture", option, nil); err != nil {
						return err
					}
					fmt.Println("Done.")
					return nil
				}),
			},
			{
				Name:  "profiles",
				Usage: "Manage offline profiles",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create an offline profile",
						ArgsUsage: "<name>",
						Action: action(func(c *cli.Context, l *launcher) error {
							var profile util.Profile
							if err := l.call(c.Context, "auth.add-profile", map[string]string{"name": c.Args().Get(0)}, &profile); err != nil {
								return err
							}
							fmt.Println("Added " + profile.Name + " (" + profile.Id + ")")
							return nil
						}),
					},
					{
						Name:    "ls",
						Aliases: []string{"list"},
						Usage:   "List offline profiles",
						Action: action(func(c *cli.Context, l *launcher) error {
							var profiles []util.Profile
							if err := l.call(c.Context, "auth.get-profiles", nil, &profiles); err != nil {
								return err
							}
							var selected *util.Profile
							if err := l.call(c.Context, "auth.get-selected-profile", nil, &selected); err != nil {
								return err
							}
							rows := make([][]string, 0, len(profiles))
							for _, p := range profiles {
								mark := ""
								if selected != nil && selected.Id == p.Id {
									mark = "*"
								}
								rows = append(rows, []string{p.Name, p.Id, mark})
							}
							printTable([]string{"NAME", "UUID", "SELECTED"}, rows)
							return nil
						}),
					},
					{
						Name:      "select",
						Usage:     "Select the profile used for offline play",
						ArgsUsage: "<name|uuid>",
						Action: action(func(c *cli.Context, l *launcher) error {
							profile, err := resolveProfile(c, l)
							if err != nil {
								return err
							}
							if err := l.call(c.Context, "auth.set-selected-profile", map[string]string{"id": profile.Id}, nil); err != nil {
								return err
							}
							fmt.Println("Now playing as " + text.Bold.Sprint(profile.Name))
							return nil
						}),
					},
					{
						Name:      "rm",
						Aliases:   []string{"remove"},
						Usage:     "Remove an offline profile",
						ArgsUsage: "<name|uuid>",
						Action: action(func(c *cli.Context, l *launcher) error {
							profile, err := resolveProfile(c, l)
							if err != nil {
								return err
							}
							if err := l.call(c.Context, "auth.del-profile", map[string]string{"id": profile.Id}, nil); err != nil {
								return err
							}
							fmt.Println("Removed " + profile.Name)
							return nil
						}),
					},
				},
			},
			{
				Name:  "config",
				Usage: "Read and write launcher settings",
				Subcommands: []*cli.Command{
					{
						Name:      "get",
						ArgsUsage: "<key>",
						Action: action(func(c *cli.Context, l *launcher) error {
							var value json.RawMessage
							if err := l.call(c.Context, "config.get", map[string]string{"key": c.Args().Get(0)}, &value); err != nil {
								return err
							}
							if value == nil {
								fmt.Println("null")
								return nil
							}
							fmt.Println(string(value))
							return nil
						}),
					},
					{
						Name:      "set",
						ArgsUsage: "<key> <value>",
						Action: action(func(c *cli.Context, l *launcher) error {
							args := map[string]any{"key": c.Args().Get(0), "value": parseValue(c.Args().Get(1))}
							return l.call(c.Context, "config.set", args, nil)
						}),
					},
					{
						Name:      "rm",
						Aliases:   []string{"delete"},
						ArgsUsage: "<key>",
						Action: action(func(c *cli.Context, l *launcher) error {
							return l.call(c.Context, "config.delete", map[string]string{"key": c.Args().Get(0)}, nil)
						}),
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search Modrinth for mods",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game-version"},
					&cli.StringFlag{Name: "loader", Value: string(util.LoaderFabric)},
					&cli.IntFlag{Name: "limit", Value: 10},
				},
				Action: action(func(c *cli.Context, l *launcher) error {
					var hits []util.ModHit
					args := map[string]any{
						"query":       strings.Join(c.Args().Slice(), " "),
						"gameVersion": c.String("game-version"),
						"loader":      c.String("loader"),
						"limit":       c.Int("limit"),
					}
					if err := l.call(c.Context, "client.search-mods", args, &hits); err != nil {
						return err
					}
					fmt.Println()
					for _, hit := range hits {
						fmt.Println(text.Bold.Sprint(hit.Title) + " " + text.Underline.Sprint(hit.Slug))
						fmt.Println("  " + hit.Description)
					}
					fmt.Println()
					return nil
				}),
			},
		},
	}

	util.Fatal(app.Run(os.Args))
}

// resolveProfile accepts either a profile name or its uuid.
func resolveProfile(c *cli.Context, l *launcher) (util.Profile, error) {
	key := c.Args().Get(0)
	var profile util.Profile
	err := l.call(c.Context, "auth.get-profile", map[string]string{"id": key}, &profile)
	return profile, err
}
