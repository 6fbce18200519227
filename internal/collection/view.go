// Package collection derives the tokens owned by the connected account.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/nft"
)

var (
	ErrRefreshFailed = errors.New("collection refresh failed")
	errNoHandle      = errors.New("no contract handle")
)

// maxTokens bounds how many identifiers one refresh materialises.
const maxTokens = 10_000

// TokenSet is the owned-token view for one account. When Exact is false the
// IDs are ordinals [0, balance) rather than on-chain token ids.
type TokenSet struct {
	Account     common.Address
	IDs         []*big.Int
	Exact       bool
	RefreshedAt time.Time
}

func (s TokenSet) Len() int { return len(s.IDs) }

// Metrics receives refresh outcomes.
type Metrics interface {
	IncRefresh(result string)
}

// View holds the current TokenSet. Refresh replaces it wholesale; a failed
// refresh keeps the previous set.
type View struct {
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time

	mu    sync.RWMutex
	set   TokenSet
	epoch uint64
}

func NewView(logger *slog.Logger, metrics Metrics) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		logger:  logger.With("component", "collection"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Tokens returns a copy of the current set.
func (v *View) Tokens() TokenSet {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := v.set
	out.IDs = append([]*big.Int(nil), v.set.IDs...)
	return out
}

// Clear drops the current set and invalidates refreshes already in flight or
// started under an earlier epoch.
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.epoch++
	v.set = TokenSet{}
}

// Epoch identifies the span between two Clear calls. Capture it while the
// session that will refresh is known to be connected and pass it to
// RefreshEpoch.
func (v *View) Epoch() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.epoch
}

// Refresh recomputes the set for account through h in the current epoch.
func (v *View) Refresh(ctx context.Context, h *nft.Handle, account common.Address) (TokenSet, error) {
	return v.RefreshEpoch(ctx, v.Epoch(), h, account)
}

// RefreshEpoch recomputes the set unless Clear has run since epoch was
// captured, in which case the result is dropped and the current set returned.
func (v *View) RefreshEpoch(ctx context.Context, epoch uint64, h *nft.Handle, account common.Address) (TokenSet, error) {
	if v.Epoch() != epoch {
		v.record("discarded")
		return v.Tokens(), nil
	}

	set, err := v.load(ctx, h, account)
	if err != nil {
		v.record("failed")
		v.logger.Warn("refresh failed", "account", account.Hex(), "error", err)
		return v.Tokens(), fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		v.record("discarded")
		return v.Tokens(), nil
	}
	v.set = set
	v.mu.Unlock()

	v.record("ok")
	v.logger.Debug("collection refreshed", "account", account.Hex(), "count", set.Len(), "exact", set.Exact)
	return set, nil
}

func (v *View) load(ctx context.Context, h *nft.Handle, account common.Address) (TokenSet, error) {
	if h == nil {
		return TokenSet{}, errNoHandle
	}
	balance, err := h.BalanceOf(ctx, account)
	if err != nil {
		return TokenSet{}, err
	}
	if !balance.IsInt64() || balance.Int64() > maxTokens {
		return TokenSet{}, fmt.Errorf("balance %s exceeds display limit %d", balance, maxTokens)
	}
	n := balance.Int64()

	set := TokenSet{Account: account, IDs: make([]*big.Int, 0, n), RefreshedAt: v.now()}
	enumerable := false
	if n > 0 {
		if enumerable, err = h.SupportsEnumerable(ctx); err != nil {
			return TokenSet{}, fmt.Errorf("supportsInterface: %w", err)
		}
	}
	if enumerable {
		for i := int64(0); i < n; i++ {
			id, err := h.TokenOfOwnerByIndex(ctx, account, i)
			if err != nil {
				return TokenSet{}, fmt.Errorf("token %d of owner: %w", i, err)
			}
			set.IDs = append(set.IDs, id)
		}
		set.Exact = true
		return set, nil
	}
	for i := int64(0); i < n; i++ {
		set.IDs = append(set.IDs, big.NewInt(i))
	}
	return set, nil
}

func (v *View) record(result string) {
	if v.metrics != nil {
		v.metrics.IncRefresh(result)
	}
}
