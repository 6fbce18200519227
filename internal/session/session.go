// Package session owns the wallet connection lifecycle: the connected account
// and the contract handle bound to its signer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/nft"
	"nftmint/internal/wallet"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	// ErrConnectAbandoned is returned by a Connect that was overtaken by
	// Disconnect before it finished.
	ErrConnectAbandoned = errors.New("connect abandoned by disconnect")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Binder turns a signer into a handle on the fixed collection contract.
type Binder func(signer *bind.TransactOpts) (*nft.Handle, error)

// Snapshot is a consistent read of the session.
type Snapshot struct {
	State   State
	Account common.Address
	Handle  *nft.Handle
	Err     error
}

// HasAccount reports whether an account is attached.
func (s Snapshot) HasAccount() bool {
	return s.State == Connected
}

// Listener receives lifecycle notifications. Calls happen outside the
// controller lock, in the goroutine that caused the change.
type Listener interface {
	Connected(h *nft.Handle, account common.Address)
	Disconnected()
}

// Controller is the single writer of the session state.
type Controller struct {
	provider wallet.Provider
	bind     Binder
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	account   common.Address
	handle    *nft.Handle
	err       error
	gen       uint64
	listeners []Listener
}

// NewController builds a controller. provider may be nil when no wallet is
// present; Connect then fails with wallet.ErrNoProvider.
func NewController(provider wallet.Provider, binder Binder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		provider: provider,
		bind:     binder,
		logger:   logger.With("component", "session"),
	}
}

// Subscribe registers l for lifecycle notifications.
func (c *Controller) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, Account: c.account, Handle: c.handle, Err: c.err}
}

// Connect requests account access, obtains a signer and binds the contract.
// While already connecting or connected it returns the current snapshot and
// does nothing else.
func (c *Controller) Connect(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	if c.provider == nil {
		c.failLocked(wallet.ErrNoProvider)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("connect failed", "error", wallet.ErrNoProvider)
		return snap, wallet.ErrNoProvider
	}
	c.gen++
	gen := c.gen
	c.state = Connecting
	c.err = nil
	c.mu.Unlock()

	account, handle, err := c.establish(ctx)

	c.mu.Lock()
	if c.gen != gen || c.state != Connecting {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrConnectAbandoned
	}
	if err != nil {
		c.failLocked(err)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Warn("connect failed", "error", err)
		return snap, err
	}
	c.state = Connected
	c.account = account
	c.handle = handle
	snap := c.snapshotLocked()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	c.logger.Info("wallet connected", "account", account.Hex(), "contract", handle.Address().Hex())
	for _, l := range listeners {
		l.Connected(handle, account)
	}
	return snap, nil
}

func (c *Controller) establish(ctx context.Context) (common.Address, *nft.Handle, error) {
	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, nil, classify("request accounts", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, nil, fmt.Errorf("request accounts: no accounts exposed: %w", wallet.ErrUserRejected)
	}
	account := accounts[0]

	signer, err := c.provider.Signer(ctx, account)
	if err != nil {
		return common.Address{}, nil, classify("get signer", err)
	}
	handle, err := c.bind(signer)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("bind contract: %w", err)
	}
	return account, handle, nil
}

// Disconnect resets the session and tells listeners to drop derived state.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	wasActive := c.state != Disconnected
	c.gen++
	c.state = Disconnected
	c.account = common.Address{}
	c.handle = nil
	c.err = nil
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	if wasActive {
		c.logger.Info("wallet disconnected")
	}
	for _, l := range listeners {
		l.Disconnected()
	}
}

func (c *Controller) failLocked(err error) {
	c.state = Failed
	c.account = common.Address{}
	c.handle = nil
	c.err = err
}

func classify(op string, err error) error {
	if wallet.IsUserRejected(err) && !errors.Is(err, wallet.ErrUserRejected) {
		return fmt.Errorf("%s: %w: %w", op, wallet.ErrUserRejected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
