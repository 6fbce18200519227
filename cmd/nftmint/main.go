package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"nftmint/internal/app"
	"nftmint/internal/config"
)

type rootOptions struct {
	envFile string
	fake    bool
	verbose bool
	noColor bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "nftmint",
		Short: "Mint and inspect tokens of the collection contract",
		Long: `nftmint connects a wallet to the collection contract, mints tokens for a
fixed price and lists the tokens owned by the connected account.

Examples:
  # Mint one token with the wallet from .env
  nftmint mint

  # Try the whole flow against an in-memory collection
  nftmint mint --fake

  # Serve the local HTTP API
  nftmint serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			return loadEnv(opts.envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().BoolVar(&opts.fake, "fake", false, "use an in-memory collection and an ephemeral wallet")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newServeCmd(opts),
		newMintCmd(opts),
		newTokensCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// loadEnv populates the environment from a dotenv file. A missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (o *rootOptions) logger(jsonOutput bool) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		if !o.verbose {
			handlerOpts.Level = slog.LevelInfo
		}
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func (o *rootOptions) open(ctx context.Context, logger *slog.Logger) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return app.New(ctx, cfg, app.Options{
		Fake:      o.fake,
		DevWallet: o.fake,
		Logger:    logger,
	})
}
