package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"nftmint/internal/explorer"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var (
		account string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the mint history recorded in the job store",
		Long: `Show recent mint jobs for an account, newest first. Without --account the
connected wallet's account is used. History is only kept with JOB_STORE=sqlite
or JOB_STORE=postgres.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, opts.logger(false))
			if err != nil {
				return err
			}
			defer a.Close()

			if account == "" {
				snap, err := a.Connect(ctx)
				if err != nil {
					return fmt.Errorf("connect wallet (or pass --account): %w", err)
				}
				account = snap.Account.Hex()
			} else if !common.IsHexAddress(account) {
				return fmt.Errorf("invalid account %q", account)
			}

			records, err := a.Store.ListByAccount(ctx, account, limit)
			if err != nil {
				return err
			}
			links := explorer.Links{Base: a.Config.Chain.ExplorerURL}
			fmt.Printf("Mint history for %s (%s store)\n", explorer.Short(common.HexToAddress(account)), a.Config.Store.Driver)
			fmt.Println("─────────────────────────────────────────────────────────")
			if len(records) == 0 {
				fmt.Println("No mints recorded")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %-10s", rec.CreatedAt.Format("2006-01-02 15:04:05"), stateString(rec.State))
				if rec.TokenID != "" {
					line += "  token #" + rec.TokenID
				}
				if rec.Cause != "" {
					line += "  " + rec.Cause
				}
				if rec.Abandoned {
					line += "  (abandoned)"
				}
				fmt.Println(line)
				if url := links.Tx(common.HexToHash(rec.TxHash)); rec.TxHash != "" && url != "" {
					fmt.Printf("    %s\n", url)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account to show history for")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}
