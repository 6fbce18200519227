package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// KeystoreProvider signs with accounts from an encrypted keystore directory.
// An empty passphrase is treated as the owner declining to unlock.
type KeystoreProvider struct {
	ks         *keystore.KeyStore
	passphrase string
	chainID    *big.Int
}

func NewKeystoreProvider(dir, passphrase string, chainID *big.Int) (*KeystoreProvider, error) {
	if dir == "" {
		return nil, fmt.Errorf("keystore dir is required")
	}
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	return &KeystoreProvider{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		chainID:    new(big.Int).Set(chainID),
	}, nil
}

func (p *KeystoreProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	if p.passphrase == "" {
		return nil, ErrUserRejected
	}
	accs := p.ks.Accounts()
	out := make([]common.Address, 0, len(accs))
	for _, a := range accs {
		out = append(out, a.Address)
	}
	return out, nil
}

func (p *KeystoreProvider) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	acc := accounts.Account{Address: account}
	if err := p.ks.Unlock(acc, p.passphrase); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", account.Hex(), err)
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, acc, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
