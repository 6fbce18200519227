package mint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/jobstore"
	"nftmint/internal/nft"
	"nftmint/internal/wallet"
)

var (
	ErrMintInFlight      = errors.New("a mint is already in flight")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrContractRevert    = errors.New("contract reverted")
	ErrProvider          = errors.New("provider error")
	ErrUnknownJob        = errors.New("unknown mint job")
	ErrJobAbandoned      = errors.New("mint job abandoned")
)

type State int

const (
	Idle State = iota
	Submitting
	Pending
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed
}

// InFlight reports whether the job holds the per-session mint slot.
func (s State) InFlight() bool {
	return s == Submitting || s == Pending
}

// Cause classifies why a job failed.
type Cause string

const (
	CauseNone              Cause = ""
	CauseUserRejected      Cause = "user_rejected"
	CauseInsufficientFunds Cause = "insufficient_funds"
	CauseContractRevert    Cause = "contract_revert"
	CauseProvider          Cause = "provider_error"
)

// Failure is the structured error recorded on a failed job. errors.Is matches
// both the taxonomy sentinel and the underlying chain error.
type Failure struct {
	Cause Cause
	Kind  error
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{f.Kind, f.Err}
}

// Job is one mint attempt. TxHash is the zero hash until the provider accepts
// the transaction.
type Job struct {
	RequestID      string
	IdempotencyKey string
	Account        common.Address
	Value          *big.Int
	State          State
	TxHash         common.Hash
	TokenID        *big.Int
	Cause          Cause
	Err            error
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (j Job) HasTx() bool {
	return j.TxHash != (common.Hash{})
}

func (j Job) clone() Job {
	out := j
	if j.Value != nil {
		out.Value = new(big.Int).Set(j.Value)
	}
	if j.TokenID != nil {
		out.TokenID = new(big.Int).Set(j.TokenID)
	}
	return out
}

func (j Job) record(abandoned bool) jobstore.Record {
	rec := jobstore.Record{
		RequestID:      j.RequestID,
		IdempotencyKey: j.IdempotencyKey,
		Account:        j.Account.Hex(),
		State:          j.State.String(),
		Cause:          string(j.Cause),
		Abandoned:      abandoned,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
	if j.Value != nil {
		rec.ValueWei = j.Value.String()
	}
	if j.HasTx() {
		rec.TxHash = j.TxHash.Hex()
	}
	if j.TokenID != nil {
		rec.TokenID = j.TokenID.String()
	}
	if j.Err != nil {
		rec.Error = j.Err.Error()
	}
	return rec
}

// classify maps a chain-facing error onto the failure taxonomy.
func classify(err error) *Failure {
	f := &Failure{Err: err}
	msg := strings.ToLower(err.Error())
	switch {
	case wallet.IsUserRejected(err),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "user rejected"):
		f.Cause, f.Kind = CauseUserRejected, wallet.ErrUserRejected
	case strings.Contains(msg, "insufficient funds"):
		f.Cause, f.Kind = CauseInsufficientFunds, ErrInsufficientFunds
	case errors.Is(err, nft.ErrReverted), strings.Contains(msg, "revert"):
		f.Cause, f.Kind = CauseContractRevert, ErrContractRevert
	default:
		f.Cause, f.Kind = CauseProvider, ErrProvider
	}
	return f
}
