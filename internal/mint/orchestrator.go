// Package mint drives the lifecycle of a paid mint transaction from submission
// to confirmation and refreshes the collection once a mint lands.
package mint

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"nftmint/internal/collection"
	"nftmint/internal/jobstore"
	"nftmint/internal/nft"
	"nftmint/internal/session"
)

// keepRuns bounds how many finished jobs stay queryable in memory.
const keepRuns = 32

// Sessions exposes the current session.
type Sessions interface {
	Snapshot() session.Snapshot
}

// Refresher recomputes the owned-token set after a confirmed mint. The epoch
// is captured when the job starts so a refresh that outlives the session is
// dropped.
type Refresher interface {
	Epoch() uint64
	RefreshEpoch(ctx context.Context, epoch uint64, h *nft.Handle, account common.Address) (collection.TokenSet, error)
}

// Observer is told about every job transition. Transitions of one job are
// delivered in order and never concurrently; Submitting is delivered on the
// goroutine calling Mint, later ones on the job's own goroutine.
type Observer interface {
	Transition(job Job)
}

type Options struct {
	Price          *big.Int
	ConfirmTimeout time.Duration
	SuccessDisplay time.Duration
	Store          jobstore.Store
	Logger         *slog.Logger
	Now            func() time.Time
}

// Orchestrator owns MintJob state. At most one job is Submitting or Pending at
// a time.
type Orchestrator struct {
	sessions       Sessions
	refresher      Refresher
	store          jobstore.Store
	logger         *slog.Logger
	price          *big.Int
	confirmTimeout time.Duration
	successDisplay time.Duration
	now            func() time.Time

	mu sync.Mutex
	// gen is bumped by Abandon; a Mint that saw an older value lost its
	// session while checking it.
	gen       uint64
	current   *run
	runs      map[string]*run
	order     []string
	observers []Observer
}

type run struct {
	job       Job
	handle    *nft.Handle
	cancel    context.CancelFunc
	done      chan struct{}
	epoch     uint64
	abandoned bool
}

func NewOrchestrator(sessions Sessions, refresher Refresher, opts Options) (*Orchestrator, error) {
	if opts.Price == nil || opts.Price.Sign() < 0 {
		return nil, fmt.Errorf("mint price is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store == nil {
		opts.Store = jobstore.NewMemoryStore()
	}
	return &Orchestrator{
		sessions:       sessions,
		refresher:      refresher,
		store:          opts.Store,
		logger:         opts.Logger.With("component", "mint"),
		price:          new(big.Int).Set(opts.Price),
		confirmTimeout: opts.ConfirmTimeout,
		successDisplay: opts.SuccessDisplay,
		now:            opts.Now,
		runs:           make(map[string]*run),
	}, nil
}

// Observe registers obs for job transitions.
func (o *Orchestrator) Observe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Price is the fixed value sent with each mint.
func (o *Orchestrator) Price() *big.Int {
	return new(big.Int).Set(o.price)
}

// Mint starts a job for the connected account and returns it in the
// Submitting state. Submission and confirmation continue in the background;
// use Wait or an Observer to follow the job.
func (o *Orchestrator) Mint(ctx context.Context, idempotencyKey string) (Job, error) {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	snap := o.sessions.Snapshot()
	if snap.State != session.Connected || snap.Handle == nil {
		return Job{}, session.ErrNotConnected
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return Job{}, session.ErrNotConnected
	}
	if o.current != nil && o.current.job.State.InFlight() {
		job := o.current.job.clone()
		o.mu.Unlock()
		return job, ErrMintInFlight
	}

	now := o.now()
	job := Job{
		RequestID:      uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Account:        snap.Account,
		Value:          new(big.Int).Set(o.price),
		State:          Idle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if o.confirmTimeout > 0 {
		runCtx, cancel = withTimeout(runCtx, cancel, o.confirmTimeout)
	}
	r := &run{job: job, handle: snap.Handle, cancel: cancel, done: make(chan struct{})}
	if o.refresher != nil {
		r.epoch = o.refresher.Epoch()
	}
	r.job.State = Submitting
	o.current = r
	o.track(r)
	submitted := r.job.clone()
	observers := o.observers
	o.mu.Unlock()

	o.publish(submitted, false, observers)
	o.logger.Info("mint submitting", "request_id", job.RequestID, "account", job.Account.Hex(), "value_wei", job.Value.String())

	go o.execute(runCtx, r)
	return submitted, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	account, value := r.job.Account, r.job.Value
	tx, err := r.handle.Mint(ctx, account, value)
	if err != nil {
		o.fail(r, err)
		return
	}
	if !o.advance(r, func(j *Job) {
		j.State = Pending
		j.TxHash = tx.Hash()
	}) {
		return
	}
	o.logger.Info("mint pending", "request_id", r.job.RequestID, "tx", tx.Hash().Hex())

	receipt, err := r.handle.Wait(ctx, tx)
	if err != nil {
		o.fail(r, err)
		return
	}
	tokenID, found := r.handle.MintedTokenID(receipt, account)
	if !found {
		o.logger.Debug("no transfer log for minted token", "request_id", r.job.RequestID, "tx", tx.Hash().Hex())
	}
	if !o.advance(r, func(j *Job) {
		j.State = Confirmed
		j.TokenID = tokenID
	}) {
		return
	}
	o.logger.Info("mint confirmed", "request_id", r.job.RequestID, "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)

	if o.refresher == nil || o.isAbandoned(r) {
		return
	}
	if _, err := o.refresher.RefreshEpoch(ctx, r.epoch, r.handle, account); err != nil {
		o.logger.Warn("post-mint refresh failed", "request_id", r.job.RequestID, "error", err)
	}
}

func (o *Orchestrator) isAbandoned(r *run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return r.abandoned
}

func (o *Orchestrator) fail(r *run, err error) {
	failure := classify(err)
	if o.advance(r, func(j *Job) {
		j.State = Failed
		j.Cause = failure.Cause
		j.Err = failure
	}) {
		o.logger.Warn("mint failed", "request_id", r.job.RequestID, "cause", failure.Cause, "error", err)
	}
}

// advance applies mutate unless the run was abandoned and publishes the
// resulting job. It reports whether the run is still being followed.
func (o *Orchestrator) advance(r *run, mutate func(*Job)) bool {
	o.mu.Lock()
	if r.abandoned {
		o.mu.Unlock()
		return false
	}
	mutate(&r.job)
	r.job.UpdatedAt = o.now()
	job := r.job.clone()
	observers := o.observers
	o.mu.Unlock()

	o.publish(job, false, observers)
	return true
}

func (o *Orchestrator) publish(job Job, abandoned bool, observers []Observer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Save(ctx, job.record(abandoned)); err != nil {
		o.logger.Error("persist mint job", "request_id", job.RequestID, "error", err)
	}
	for _, obs := range observers {
		obs.Transition(job)
	}
}

// Abandon stops following the current job and clears it. A transaction already
// broadcast may still confirm on chain; that outcome is not reflected here.
func (o *Orchestrator) Abandon() {
	o.mu.Lock()
	o.gen++
	r := o.current
	o.current = nil
	if r == nil {
		o.mu.Unlock()
		return
	}
	wasInFlight := r.job.State.InFlight()
	r.abandoned = true
	job := r.job.clone()
	o.mu.Unlock()

	r.cancel()
	if wasInFlight {
		o.logger.Info("mint abandoned", "request_id", job.RequestID, "state", job.State.String(), "tx", job.TxHash.Hex())
		o.publish(job, true, nil)
	}
}

// Current returns the job of the session, if any.
func (o *Orchestrator) Current() (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Job{State: Idle}, false
	}
	return o.current.job.clone(), true
}

// Job returns a job this process is tracking.
func (o *Orchestrator) Job(requestID string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[requestID]
	if !ok {
		return Job{}, false
	}
	return r.job.clone(), true
}

// Wait blocks until the job reaches a terminal state, including the post-mint
// refresh, or until ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, requestID string) (Job, error) {
	o.mu.Lock()
	r, ok := o.runs[requestID]
	o.mu.Unlock()
	if !ok {
		return Job{}, ErrUnknownJob
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if r.abandoned {
		return r.job.clone(), ErrJobAbandoned
	}
	return r.job.clone(), nil
}

// SuccessVisible reports whether the success indicator for the current job
// should still be shown.
func (o *Orchestrator) SuccessVisible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.job.State != Confirmed {
		return false
	}
	return o.now().Sub(o.current.job.UpdatedAt) < o.successDisplay
}

func (o *Orchestrator) track(r *run) {
	o.runs[r.job.RequestID] = r
	o.order = append(o.order, r.job.RequestID)
	for len(o.order) > keepRuns {
		oldest := o.order[0]
		if old := o.runs[oldest]; old != nil && old == o.current {
			break
		}
		delete(o.runs, oldest)
		o.order = o.order[1:]
	}
}

func withTimeout(parent context.Context, cancelParent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		cancelParent()
	}
}
