package collection

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/nft"
)

var (
	testAccount  = common.HexToAddress("0xABCD000000000000000000000000000000000001")
	otherAccount = common.HexToAddress("0xABCD000000000000000000000000000000000002")
	testContract = common.HexToAddress("0xD8a47Da70D7E828e01fDC4F959fAB5aA52e6fF4b")
)

type countingMetrics map[string]int

func (m countingMetrics) IncRefresh(result string) { m[result]++ }

func ids(set TokenSet) []int64 {
	out := make([]int64, 0, len(set.IDs))
	for _, id := range set.IDs {
		out = append(out, id.Int64())
	}
	return out
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRefreshOrdinalFallback(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.Give(otherAccount)
	fake.Give(testAccount)
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, fake, nil)
	v := NewView(nil, nil)

	set, err := v.Refresh(context.Background(), h, testAccount)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if set.Exact {
		t.Fatalf("non-enumerable contract must yield ordinal ids")
	}
	if got := ids(set); !equal(got, []int64{0, 1}) {
		t.Fatalf("expected [0 1], got %v", got)
	}
	if !equal(ids(v.Tokens()), []int64{0, 1}) {
		t.Fatalf("view not updated")
	}
}

func TestRefreshEnumerableUsesRealIDs(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.SetEnumerable(true)
	fake.Give(otherAccount)
	fake.Give(testAccount)
	fake.Give(otherAccount)
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, fake, nil)
	v := NewView(nil, nil)

	set, err := v.Refresh(context.Background(), h, testAccount)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !set.Exact {
		t.Fatalf("expected exact ids")
	}
	if got := ids(set); !equal(got, []int64{1, 3}) {
		t.Fatalf("expected [1 3], got %v", got)
	}
}

func TestRefreshFailureKeepsPreviousSet(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.Give(testAccount)
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, fake, nil)
	metrics := countingMetrics{}
	v := NewView(nil, metrics)

	if _, err := v.Refresh(context.Background(), h, testAccount); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fake.FailBalance(errors.New("rpc unavailable"))
	set, err := v.Refresh(context.Background(), h, testAccount)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if set.Len() != 2 || v.Tokens().Len() != 2 {
		t.Fatalf("failed refresh must not shrink the set, got %d", v.Tokens().Len())
	}

	fake.FailBalance(nil)
	fake.Give(testAccount)
	set, err = v.Refresh(context.Background(), h, testAccount)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !equal(ids(set), []int64{0, 1, 2}) {
		t.Fatalf("expected full replacement [0 1 2], got %v", ids(set))
	}
	if metrics["ok"] != 2 || metrics["failed"] != 1 {
		t.Fatalf("unexpected metrics %v", metrics)
	}
}

func TestRefreshInterfaceCheckFailureKeepsExactSet(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.SetEnumerable(true)
	fake.Give(otherAccount)
	fake.Give(otherAccount)
	fake.Give(testAccount)
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, fake, nil)
	metrics := countingMetrics{}
	v := NewView(nil, metrics)

	if _, err := v.Refresh(context.Background(), h, testAccount); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	fake.FailSupportsInterface(errors.New("read tcp 10.0.0.1:443: i/o timeout"))
	set, err := v.Refresh(context.Background(), h, testAccount)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if !set.Exact || !equal(ids(set), []int64{2, 3}) {
		t.Fatalf("expected previous exact set [2 3], got %v exact=%v", ids(set), set.Exact)
	}
	if got := v.Tokens(); !got.Exact || !equal(ids(got), []int64{2, 3}) {
		t.Fatalf("stored set replaced by %v exact=%v", ids(got), got.Exact)
	}

	fake.FailSupportsInterface(errors.New("execution reverted"))
	set, err = v.Refresh(context.Background(), h, testAccount)
	if err != nil {
		t.Fatalf("a reverting interface check means no ERC-165, got %v", err)
	}
	if set.Exact || !equal(ids(set), []int64{0, 1}) {
		t.Fatalf("expected ordinals [0 1], got %v exact=%v", ids(set), set.Exact)
	}
	if metrics["failed"] != 1 || metrics["ok"] != 2 {
		t.Fatalf("unexpected metrics %v", metrics)
	}
}

func TestRefreshEpochAfterClearIsDropped(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, fake, nil)
	metrics := countingMetrics{}
	v := NewView(nil, metrics)

	epoch := v.Epoch()
	v.Clear()

	set, err := v.RefreshEpoch(context.Background(), epoch, h, testAccount)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if set.Len() != 0 || v.Tokens().Len() != 0 {
		t.Fatalf("refresh from a cleared epoch must not repopulate the set")
	}
	if metrics["discarded"] != 1 {
		t.Fatalf("unexpected metrics %v", metrics)
	}

	if _, err := v.RefreshEpoch(context.Background(), v.Epoch(), h, testAccount); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Tokens().Len() != 1 {
		t.Fatalf("refresh in the current epoch must apply")
	}
}

func TestRefreshWithoutHandle(t *testing.T) {
	v := NewView(nil, nil)
	if _, err := v.Refresh(context.Background(), nil, testAccount); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestClearInvalidatesInFlightRefresh(t *testing.T) {
	fake := nft.NewFakeContract(testContract, big.NewInt(1))
	fake.Give(testAccount)
	h := nft.NewHandle(testContract, &clearingContract{Contract: fake}, nil)
	v := NewView(nil, nil)
	h.Contract().(*clearingContract).view = v

	if _, err := v.Refresh(context.Background(), h, testAccount); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v.Tokens().Len() != 0 {
		t.Fatalf("refresh that raced a clear must be discarded")
	}
}

// clearingContract clears the view during the balance read, standing in for a
// disconnect racing a refresh.
type clearingContract struct {
	nft.Contract
	view *View
}

func (c *clearingContract) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	c.view.Clear()
	return c.Contract.BalanceOf(ctx, owner)
}
