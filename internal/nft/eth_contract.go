package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the RPC surface a bound contract needs; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// EthContract talks to the deployed collection over JSON-RPC.
type EthContract struct {
	backend      Backend
	bound        *bind.BoundContract
	address      common.Address
	pollInterval time.Duration
}

func NewEthContract(backend Backend, address common.Address, pollInterval time.Duration) *EthContract {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &EthContract{
		backend:      backend,
		bound:        bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		address:      address,
		pollInterval: pollInterval,
	}
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return cli, nil
}

// Binder returns a constructor of handles bound to this contract.
func (c *EthContract) Binder() func(*bind.TransactOpts) (*Handle, error) {
	return func(signer *bind.TransactOpts) (*Handle, error) {
		return NewHandle(c.address, c, signer), nil
	}
}

func (c *EthContract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, "balanceOf", owner)
}

func (c *EthContract) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	return c.callUint(ctx, "tokenOfOwnerByIndex", owner, index)
}

func (c *EthContract) SupportsInterface(ctx context.Context, id [4]byte) (bool, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "supportsInterface", id); err != nil {
		return false, fmt.Errorf("supportsInterface: %w", err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("supportsInterface: unexpected output length %d", len(out))
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EthContract) MintNFT(opts *bind.TransactOpts, to common.Address) (*types.Transaction, error) {
	tx, err := c.bound.Transact(opts, "mintNFT", to)
	if err != nil {
		return nil, fmt.Errorf("mintNFT tx: %w", err)
	}
	return tx, nil
}

// WaitMined polls until the transaction is mined or ctx is cancelled.
func (c *EthContract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", tx.Hash().Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Ping checks the RPC endpoint is reachable.
func (c *EthContract) Ping(ctx context.Context) error {
	_, err := c.backend.HeaderByNumber(ctx, nil)
	return err
}

func (c *EthContract) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output length %d", method, len(out))
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
