package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/postlock/internal"
	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/shell"
	pkgconfig "github.com/starford/postlock/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("project"); root != "" {
		cfg.Project.Root = root
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithForce(cmd.Bool("force")),
	}, nil
}

func printReport(r *build.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	} else {
		fmt.Printf("processed %d, locked %d, unchanged %d, skipped %d, failed %d; %d links locked, %d images copied\n",
			r.Processed, r.Locked, r.Unchanged, r.Skipped, r.Failed, r.Links, r.Images)
		for _, f := range r.Failures() {
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", f.Path, f.Error)
		}
	}
	if r.Failed > 0 {
		return fmt.Errorf("%d post(s) failed", r.Failed)
	}
	return nil
}

func buildAction(images bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := loadOptions(cmd)
		if err != nil {
			return err
		}
		report, err := internal.Build(ctx, images, opts...)
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		return printReport(report, cmd.Bool("json"))
	}
}

func imagesAction(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	n, err := internal.CopyImages(ctx, opts...)
	if err != nil {
		return fmt.Errorf("images: %w", err)
	}
	fmt.Printf("%d images copied\n", n)
	return nil
}

func unlockAction(_ context.Context, cmd *cli.Command) error {
	payload := cmd.Args().First()
	if payload == "" {
		return errors.New("unlock: payload argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	u, err := internal.Unlock(payload, opts...)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	fmt.Println(u)
	return nil
}

func importAction(ctx context.Context, cmd *cli.Command) error {
	archive := cmd.Args().First()
	if archive == "" {
		return errors.New("import: zip file argument is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Import(ctx, archive, opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("extracted %d files to %s\nbacked up to %s\n", res.Files, res.ArticleDir, res.BackupDir)
	return nil
}

func execAction(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	preset := cmd.Args().First()
	if preset == "" {
		names, err := internal.Presets(opts...)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(names, "\n"))
		return nil
	}

	code, err := internal.Exec(ctx, preset, cmd.Args().Tail(), func(l shell.Line) {
		if l.Stream == shell.Stderr {
			fmt.Fprintln(os.Stderr, l.Text)
			return
		}
		fmt.Println(l.Text)
	}, opts...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if code != 0 {
		return cli.Exit(fmt.Sprintf("%s exited with code %d", preset, code), code)
	}
	return nil
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, opts...)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpAction(_ context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(version, opts...)
}

func main() {
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "Print the build report as JSON"}
	forceFlag := &cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Re-process posts the journal marks as unchanged",
	}

	cmd := &cli.Command{
		Name:    "postlock",
		Usage:   "Encrypt outbound links in blog posts, copy post images, import article bundles and run project commands",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project root (overrides project.root)",
				Sources: cli.EnvVars("POSTLOCK_PROJECT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Lock links in every post, then copy post images to the public directory",
				Flags:  []cli.Flag{forceFlag, jsonFlag},
				Action: buildAction(true),
			},
			{
				Name:   "lock",
				Usage:  "Lock links in every post without copying images",
				Flags:  []cli.Flag{forceFlag, jsonFlag},
				Action: buildAction(false),
			},
			{
				Name:   "images",
				Usage:  "Copy post images to the public directory",
				Action: imagesAction,
			},
			{
				Name:      "unlock",
				Usage:     "Decrypt a locked link payload",
				ArgsUsage: "<payload>",
				Action:    unlockAction,
			},
			{
				Name:      "import",
				Usage:     "Extract a zipped article into a new timestamped post directory and back it up",
				ArgsUsage: "<bundle.zip>",
				Action:    importAction,
			},
			{
				Name:      "exec",
				Usage:     "Run a command preset in the project root (lists presets without arguments)",
				ArgsUsage: "[preset] [args...]",
				Action:    execAction,
			},
			{
				Name:   "watch",
				Usage:  "Lock posts as they change",
				Flags:  []cli.Flag{forceFlag},
				Action: watchAction,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and watch posts",
				Action: serveAction,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcpAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			slog.Error("command failed", slog.String("error", err.Error()))
			os.Exit(exitErr.ExitCode())
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
