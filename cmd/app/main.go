package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/starford/paperfeed/internal"
	"github.com/starford/paperfeed/internal/secret"
	pkgconfig "github.com/starford/paperfeed/pkg/config"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	if err := pkgconfig.LoadEnvFiles(".env.local"); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, opts...); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func refresh(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RefreshOnce(ctx, os.Stdout, opts...)
}

func wipeDB(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.WipeDB(ctx, opts...)
}

func keygen(_ context.Context, _ *cli.Command) error {
	key, err := secret.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "paperfeed",
		Usage:   "Daily paper recommendations seeded from your Zotero library",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the web server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve recommendations to MCP clients over stdio",
				Action: mcp,
			},
			{
				Name:   "refresh",
				Usage:  "Refresh recommendations once and print them as JSON",
				Action: refresh,
			},
			{
				Name:   "keygen",
				Usage:  "Generate an encryption key for the database backend",
				Action: keygen,
			},
			{
				Name:   "wipe-db",
				Usage:  "Drop and recreate the user database",
				Action: wipeDB,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
