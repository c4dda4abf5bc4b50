package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/safeguard/internal"
	pkgconfig "github.com/starford/safeguard/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// interruptible cancels the command's context on SIGINT or SIGTERM, so a
// one-shot command abandons its fetch instead of dying mid-write.
func interruptible(action func(context.Context, *cli.Command) error) func(context.Context, *cli.Command) error {
	return func(ctx context.Context, cmd *cli.Command) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return action(ctx, cmd)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	outcome, err := internal.Sync(ctx, internal.WithConfig(cfg), internal.WithConsole(os.Stderr))
	if perr := printJSON(map[string]string{"outcome": string(outcome)}); perr != nil {
		return perr
	}
	return err
}

func transactions(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	txs, err := internal.Transactions(ctx, int(cmd.Int("limit")), internal.WithConfig(cfg), internal.WithConsole(os.Stderr))
	if err != nil {
		return err
	}
	return printJSON(txs)
}

func snapshots(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rows, err := internal.Snapshots(ctx, internal.WithConfig(cfg), internal.WithConsole(os.Stderr))
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func recoverTxs(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Recover(ctx, cmd.String("watchlist"), internal.WithConfig(cfg), internal.WithConsole(os.Stderr))
	if err != nil {
		return err
	}
	return printJSON(report)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithConsole(os.Stderr))
}

func main() {
	cmd := &cli.Command{
		Name:   "safeguard",
		Usage:  "Keeps a local date-keyed cache of safeguard block headers for wallet recovery scans",
		Action: serve,
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
				Usage:  "Run the scheduler and the local API (default)",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Run one download cycle and exit",
				Action: interruptible(syncOnce),
			},
			{
				Name:  "transactions",
				Usage: "Print cached transactions of the latest snapshot in random order",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max transactions (0 for all)"},
				},
				Action: interruptible(transactions),
			},
			{
				Name:   "snapshots",
				Usage:  "List cached snapshots",
				Action: interruptible(snapshots),
			},
			{
				Name:  "recover",
				Usage: "Scan the latest snapshot for transactions on a watch list",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "watchlist", Aliases: []string{"w"}, Usage: "YAML watch list", Required: true},
				},
				Action: interruptible(recoverTxs),
			},
			{
				Name:   "mcp",
				Usage:  "Serve safeguard tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
