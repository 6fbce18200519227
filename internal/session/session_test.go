package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/nft"
	"nftmint/internal/wallet"
)

var (
	testAccount  = common.HexToAddress("0xABCD000000000000000000000000000000000001")
	testContract = common.HexToAddress("0xD8a47Da70D7E828e01fDC4F959fAB5aA52e6fF4b")
)

type stubProvider struct {
	mu          sync.Mutex
	accounts    []common.Address
	accountsErr error
	signerErr   error
	calls       int
	block       chan struct{}
	entered     chan struct{}
}

func (p *stubProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	p.calls++
	block, entered := p.block, p.entered
	p.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if p.accountsErr != nil {
		return nil, p.accountsErr
	}
	return p.accounts, nil
}

func (p *stubProvider) Signer(_ context.Context, account common.Address) (*bind.TransactOpts, error) {
	if p.signerErr != nil {
		return nil, p.signerErr
	}
	return &bind.TransactOpts{From: account}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recorder struct {
	mu           sync.Mutex
	connected    []common.Address
	disconnected int
}

func (r *recorder) Connected(_ *nft.Handle, account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, account)
}

func (r *recorder) Disconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func newController(p wallet.Provider) *Controller {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	return NewController(p, Binder(fake.Binder()), nil)
}

func TestConnectSuccess(t *testing.T) {
	p := &stubProvider{accounts: []common.Address{testAccount}}
	c := newController(p)
	rec := &recorder{}
	c.Subscribe(rec)

	if got := c.Snapshot().State; got != Disconnected {
		t.Fatalf("expected initial Disconnected, got %s", got)
	}

	snap, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if snap.State != Connected || snap.Account != testAccount {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Handle == nil || snap.Handle.Address() != testContract || snap.Handle.Account() != testAccount {
		t.Fatalf("expected handle bound to contract and account")
	}
	if len(rec.connected) != 1 || rec.connected[0] != testAccount {
		t.Fatalf("expected one connected notification, got %v", rec.connected)
	}
}

func TestConnectIdempotentWhenConnected(t *testing.T) {
	p := &stubProvider{accounts: []common.Address{testAccount}}
	c := newController(p)
	first, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	for i := 0; i < 3; i++ {
		snap, err := c.Connect(context.Background())
		if err != nil {
			t.Fatalf("repeat connect: %v", err)
		}
		if snap.State != Connected || snap.Account != first.Account || snap.Handle != first.Handle {
			t.Fatalf("repeat connect changed session: %+v", snap)
		}
	}
	if p.callCount() != 1 {
		t.Fatalf("expected a single account request, got %d", p.callCount())
	}
}

func TestConnectIdempotentWhileConnecting(t *testing.T) {
	p := &stubProvider{
		accounts: []common.Address{testAccount},
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	c := newController(p)

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		done <- err
	}()
	<-p.entered

	snap, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("concurrent connect: %v", err)
	}
	if snap.State != Connecting {
		t.Fatalf("expected Connecting snapshot, got %s", snap.State)
	}

	close(p.block)
	if err := <-done; err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if p.callCount() != 1 {
		t.Fatalf("expected a single account request, got %d", p.callCount())
	}
}

func TestConnectWithoutProvider(t *testing.T) {
	c := NewController(nil, nil, nil)

	snap, err := c.Connect(context.Background())
	if !errors.Is(err, wallet.ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
	if snap.State != Failed || !errors.Is(snap.Err, wallet.ErrNoProvider) {
		t.Fatalf("expected Failed with NoProvider, got %+v", snap)
	}
}

func TestConnectUserRejected(t *testing.T) {
	cases := map[string]*stubProvider{
		"declined":    {accountsErr: wallet.ErrUserRejected},
		"no accounts": {},
		"signer":      {accounts: []common.Address{testAccount}, signerErr: wallet.ErrUserRejected},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			c := newController(p)
			snap, err := c.Connect(context.Background())
			if !errors.Is(err, wallet.ErrUserRejected) {
				t.Fatalf("expected ErrUserRejected, got %v", err)
			}
			if snap.State != Failed || snap.Handle != nil {
				t.Fatalf("expected Failed without handle, got %+v", snap)
			}
		})
	}
}

func TestConnectRetryAfterFailure(t *testing.T) {
	p := &stubProvider{accountsErr: wallet.ErrUserRejected}
	c := newController(p)
	if _, err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected first connect to fail")
	}

	p.accountsErr = nil
	p.accounts = []common.Address{testAccount}
	snap, err := c.Connect(context.Background())
	if err != nil || snap.State != Connected {
		t.Fatalf("expected retry to connect, got %+v %v", snap, err)
	}
}

func TestDisconnectResets(t *testing.T) {
	p := &stubProvider{accounts: []common.Address{testAccount}}
	c := newController(p)
	rec := &recorder{}
	c.Subscribe(rec)

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Disconnect()

	snap := c.Snapshot()
	if snap.State != Disconnected || snap.Handle != nil || snap.Account != (common.Address{}) {
		t.Fatalf("expected reset session, got %+v", snap)
	}
	if rec.disconnected != 1 {
		t.Fatalf("expected disconnect notification")
	}
}

func TestDisconnectWhileConnectingAbandons(t *testing.T) {
	p := &stubProvider{
		accounts: []common.Address{testAccount},
		block:    make(chan struct{}),
		entered:  make(chan struct{}, 1),
	}
	c := newController(p)
	rec := &recorder{}
	c.Subscribe(rec)

	done := make(chan error, 1)
	go func() {
		_, err := c.Connect(context.Background())
		done <- err
	}()
	<-p.entered
	c.Disconnect()
	close(p.block)

	if err := <-done; !errors.Is(err, ErrConnectAbandoned) {
		t.Fatalf("expected ErrConnectAbandoned, got %v", err)
	}
	if c.Snapshot().State != Disconnected {
		t.Fatalf("expected session to stay Disconnected")
	}
	if len(rec.connected) != 0 {
		t.Fatalf("abandoned connect must not notify listeners")
	}
}
