// Package wallet adapts signing backends to the capability the session needs:
// request the accounts the user exposes, then hand out a signer for one of them.
package wallet

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNoProvider   = errors.New("no wallet provider available")
	ErrUserRejected = errors.New("user rejected the request")
)

// codeUserRejected is the EIP-1193 provider error for a declined request.
const codeUserRejected = 4001

// Provider is a wallet that can expose accounts and sign for them.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
}

// IsUserRejected reports whether err means the wallet owner declined.
func IsUserRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) || errors.Is(err, keystore.ErrDecrypt) || errors.Is(err, keystore.ErrLocked) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return true
	}
	return false
}
