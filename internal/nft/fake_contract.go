package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeContract is an in-memory collection used for local development and
// tests. Minted token ids are sequential across all holders.
type FakeContract struct {
	mu         sync.Mutex
	address    common.Address
	price      *big.Int
	enumerable bool
	owned      map[common.Address][]*big.Int
	pending    map[common.Hash]fakeMint
	nextID     int64
	nonce      uint64
	mintCalls  int
	submitErr  error
	revertNext bool
	balanceErr error
	erc165Err  error
	dropLogs   bool
	hold       chan struct{}
}

type fakeMint struct {
	to     common.Address
	revert bool
}

func NewFakeContract(address common.Address, price *big.Int) *FakeContract {
	if price == nil {
		price = new(big.Int)
	}
	return &FakeContract{
		address: address,
		price:   new(big.Int).Set(price),
		owned:   make(map[common.Address][]*big.Int),
		pending: make(map[common.Hash]fakeMint),
	}
}

// Binder returns a constructor of handles bound to the fake.
func (f *FakeContract) Binder() func(*bind.TransactOpts) (*Handle, error) {
	return func(signer *bind.TransactOpts) (*Handle, error) {
		return NewHandle(f.address, f, signer), nil
	}
}

// DropTransferLogs makes the next successful receipt carry no Transfer log.
func (f *FakeContract) DropTransferLogs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLogs = true
}

// SetEnumerable toggles ERC-721 Enumerable support.
func (f *FakeContract) SetEnumerable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumerable = v
}

// FailNextSubmit makes the next MintNFT call return err.
func (f *FakeContract) FailNextSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// RevertNextMint makes the next accepted mint produce a failed receipt.
func (f *FakeContract) RevertNextMint() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revertNext = true
}

// FailBalance makes balance reads fail until called again with nil.
func (f *FakeContract) FailBalance(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr = err
}

// FailSupportsInterface makes supportsInterface calls return err until reset
// with nil.
func (f *FakeContract) FailSupportsInterface(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.erc165Err = err
}

// HoldConfirmations blocks WaitMined until ReleaseConfirmations is called.
func (f *FakeContract) HoldConfirmations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
}

func (f *FakeContract) ReleaseConfirmations() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold != nil {
		close(f.hold)
		f.hold = nil
	}
}

// MintCalls counts MintNFT invocations, accepted or not.
func (f *FakeContract) MintCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls
}

// Give credits `to` with a token without going through MintNFT.
func (f *FakeContract) Give(to common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credit(to)
}

func (f *FakeContract) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return big.NewInt(int64(len(f.owned[owner]))), nil
}

func (f *FakeContract) TokenOfOwnerByIndex(_ context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enumerable {
		return nil, errors.New("execution reverted")
	}
	tokens := f.owned[owner]
	if !index.IsInt64() || index.Int64() < 0 || index.Int64() >= int64(len(tokens)) {
		return nil, errors.New("execution reverted: owner index out of bounds")
	}
	return new(big.Int).Set(tokens[index.Int64()]), nil
}

func (f *FakeContract) SupportsInterface(_ context.Context, id [4]byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.erc165Err != nil {
		return false, f.erc165Err
	}
	switch id {
	case InterfaceERC721:
		return true, nil
	case InterfaceERC721Enumerable:
		return f.enumerable, nil
	}
	return false, nil
}

func (f *FakeContract) MintNFT(opts *bind.TransactOpts, to common.Address) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mintCalls++

	if err := f.submitErr; err != nil {
		f.submitErr = nil
		return nil, err
	}
	value := opts.Value
	if value == nil || value.Cmp(f.price) < 0 {
		return nil, errors.New("execution reverted: insufficient payment")
	}

	data, err := parsedABI.Pack("mintNFT", to)
	if err != nil {
		return nil, fmt.Errorf("pack mintNFT: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    f.nonce,
		To:       &f.address,
		Value:    new(big.Int).Set(value),
		Gas:      150_000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	if opts.Signer != nil {
		signed, err := opts.Signer(opts.From, tx)
		if err != nil {
			return nil, fmt.Errorf("sign: %w", err)
		}
		tx = signed
	}
	f.nonce++
	f.pending[tx.Hash()] = fakeMint{to: to, revert: f.revertNext}
	f.revertNext = false
	return tx, nil
}

func (f *FakeContract) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.pending[tx.Hash()]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", tx.Hash().Hex())
	}
	delete(f.pending, tx.Hash())

	receipt := &types.Receipt{
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(f.nonce)),
		GasUsed:     tx.Gas(),
	}
	if m.revert {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, nil
	}
	id := f.credit(m.to)
	receipt.Status = types.ReceiptStatusSuccessful
	if f.dropLogs {
		f.dropLogs = false
		return receipt, nil
	}
	receipt.Logs = []*types.Log{{
		Address: f.address,
		Topics: []common.Hash{
			parsedABI.Events["Transfer"].ID,
			{},
			common.BytesToHash(m.to.Bytes()),
			common.BigToHash(id),
		},
		TxHash: tx.Hash(),
	}}
	return receipt, nil
}

func (f *FakeContract) credit(to common.Address) *big.Int {
	id := big.NewInt(f.nextID)
	f.nextID++
	f.owned[to] = append(f.owned[to], id)
	return new(big.Int).Set(id)
}
