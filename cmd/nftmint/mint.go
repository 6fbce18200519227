package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nftmint/internal/explorer"
	"nftmint/internal/mint"
)

func newMintCmd(opts *rootOptions) *cobra.Command {
	var (
		key       string
		serverURL string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Connect the wallet and mint one token",
		Long: `Connect the configured wallet, mint one token for the mint price and wait
for the transaction to confirm. With --server the request goes through a running
"nftmint serve" instead, signed with API_HMAC_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if serverURL != "" {
				return runRemoteMint(ctx, serverURL, key)
			}
			return runMint(ctx, opts, key)
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "replay the job created earlier with this key (server mode)")
	cmd.Flags().StringVar(&serverURL, "server", "", "base URL of a running nftmint API")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting after this long")
	return cmd
}

func runMint(ctx context.Context, opts *rootOptions, key string) error {
	a, err := opts.open(ctx, opts.logger(false))
	if err != nil {
		return err
	}
	defer a.Close()

	links := explorer.Links{Base: a.Config.Chain.ExplorerURL}
	a.Mints.Observe(progress{links: links})

	snap, err := a.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	printConnected(snap.Account, links)

	job, err := a.Mints.Mint(ctx, key)
	if err != nil {
		return err
	}
	done, err := a.Mints.Wait(ctx, job.RequestID)
	if err != nil {
		return err
	}
	if done.State != mint.Confirmed {
		return done.Err
	}

	printCollection(a.Collection.Tokens(), a.Config.Chain.ImageURI)
	return nil
}
