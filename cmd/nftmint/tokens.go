package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nftmint/internal/explorer"
)

func newTokensCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the tokens owned by the connected wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, opts.logger(false))
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect wallet: %w", err)
			}
			printConnected(snap.Account, explorer.Links{Base: a.Config.Chain.ExplorerURL})

			set, err := a.Collection.Refresh(ctx, snap.Handle, snap.Account)
			if err != nil {
				return err
			}
			printCollection(set, a.Config.Chain.ImageURI)
			return nil
		},
	}
}
