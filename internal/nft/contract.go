// Package nft binds the collection contract to a signer and exposes its typed
// read and write calls.
package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned by Wait when the mined receipt carries a failed status.
var ErrReverted = errors.New("transaction reverted")

// Contract abstracts the on-chain collection interaction.
type Contract interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	SupportsInterface(ctx context.Context, id [4]byte) (bool, error)
	MintNFT(opts *bind.TransactOpts, to common.Address) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// HealthChecker is implemented by contracts backed by a live RPC endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handle is an immutable binding of the contract address, its interface and an
// active signer. It is created once per connection and lent to readers.
type Handle struct {
	address  common.Address
	signer   bind.TransactOpts
	contract Contract
}

func NewHandle(address common.Address, contract Contract, signer *bind.TransactOpts) *Handle {
	h := &Handle{address: address, contract: contract}
	if signer != nil {
		h.signer = *signer
	}
	return h
}

func (h *Handle) Address() common.Address { return h.address }

// Account is the address the signer acts for.
func (h *Handle) Account() common.Address { return h.signer.From }

func (h *Handle) Contract() Contract { return h.contract }

func (h *Handle) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return h.contract.BalanceOf(ctx, owner)
}

func (h *Handle) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index int64) (*big.Int, error) {
	return h.contract.TokenOfOwnerByIndex(ctx, owner, big.NewInt(index))
}

// SupportsEnumerable reports whether the contract exposes per-owner token
// enumeration. Contracts without ERC-165 revert, which is reported as false;
// any other failure is returned.
func (h *Handle) SupportsEnumerable(ctx context.Context) (bool, error) {
	ok, err := h.contract.SupportsInterface(ctx, InterfaceERC721Enumerable)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// isRevert reports whether err is the node refusing the call itself rather
// than a transport failure.
func isRevert(err error) bool {
	if errors.Is(err, bind.ErrNoCode) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}

// Mint submits a paid mintNFT call addressed to `to`.
func (h *Handle) Mint(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error) {
	if h.signer.Signer == nil {
		return nil, fmt.Errorf("handle is read-only")
	}
	opts := h.signer
	opts.Context = ctx
	opts.Value = new(big.Int).Set(value)
	return h.contract.MintNFT(&opts, to)
}

// Wait blocks until tx is mined. A failed receipt is returned together with
// ErrReverted.
func (h *Handle) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := h.contract.WaitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

// MintedTokenID extracts the token minted to `to` from the receipt's Transfer
// logs emitted by this contract.
func (h *Handle) MintedTokenID(receipt *types.Receipt, to common.Address) (*big.Int, bool) {
	return mintedTokenID(receipt, h.address, to)
}

func mintedTokenID(receipt *types.Receipt, contract, to common.Address) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	transferID := parsedABI.Events["Transfer"].ID
	for _, l := range receipt.Logs {
		if l.Address != contract || len(l.Topics) != 4 || l.Topics[0] != transferID {
			continue
		}
		if l.Topics[1] != (common.Hash{}) {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}
