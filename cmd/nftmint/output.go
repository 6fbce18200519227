package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/fatih/color"

	"nftmint/internal/collection"
	"nftmint/internal/explorer"
	"nftmint/internal/mint"
)

// progress prints mint transitions as they happen.
type progress struct {
	links explorer.Links
}

func (p progress) Transition(job mint.Job) {
	switch job.State {
	case mint.Submitting:
		fmt.Printf("Minting for %s (%s FLOW)...\n", explorer.Short(job.Account), formatEther(job.Value))
	case mint.Pending:
		fmt.Printf("Transaction sent: %s\n", job.TxHash.Hex())
		if url := p.links.Tx(job.TxHash); url != "" {
			fmt.Printf("  %s\n", url)
		}
	case mint.Confirmed:
		color.Green("NFT minted successfully! Token #%s", job.TokenID)
	case mint.Failed:
		color.Red("Mint failed (%s): %v", job.Cause, job.Err)
	}
}

func printConnected(account common.Address, links explorer.Links) {
	fmt.Printf("Connected: %s\n", color.CyanString(explorer.Short(account)))
	if url := links.Address(account); url != "" {
		fmt.Printf("  %s\n", url)
	}
}

func printCollection(set collection.TokenSet, imageURI string) {
	color.New(color.Bold).Printf("Your NFTs (%d)\n", set.Len())
	if set.Len() == 0 {
		fmt.Println("  You don't own any NFTs yet")
		return
	}
	for _, id := range set.IDs {
		fmt.Printf("  Token #%s\n", id)
	}
	if !set.Exact {
		color.Yellow("  numbers are positions, the contract does not enumerate token ids")
	}
	if imageURI != "" {
		fmt.Printf("  image: %s\n", imageURI)
	}
}

func stateString(state string) string {
	switch state {
	case "confirmed":
		return color.GreenString(state)
	case "failed":
		return color.RedString(state)
	case "submitting", "pending":
		return color.YellowString(state)
	}
	return state
}

func formatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', -1)
}
