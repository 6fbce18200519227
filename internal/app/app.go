// Package app wires the wallet, contract binding, session, collection and mint
// components from configuration.
package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftmint/internal/collection"
	"nftmint/internal/config"
	"nftmint/internal/jobstore"
	"nftmint/internal/metrics"
	"nftmint/internal/mint"
	"nftmint/internal/nft"
	"nftmint/internal/session"
	"nftmint/internal/wallet"
)

// refreshTimeout bounds the asynchronous refresh started on connect.
const refreshTimeout = 30 * time.Second

type Options struct {
	// Fake replaces the RPC-backed contract with an in-memory collection.
	Fake bool
	// DevWallet signs with an ephemeral key when no wallet is configured.
	DevWallet bool
	Logger    *slog.Logger
}

// App holds the live components of one client.
type App struct {
	Config     *config.AppConfig
	Session    *session.Controller
	Collection *collection.View
	Mints      *mint.Orchestrator
	Metrics    *metrics.Registry
	Store      jobstore.Store

	health  nft.HealthChecker
	logger  *slog.Logger
	closers []func()
}

func New(ctx context.Context, cfg *config.AppConfig, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	price, err := cfg.Mint.Price()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Metrics: metrics.NewRegistry(), logger: logger}

	binder, chainID, err := a.contract(ctx, price, opts.Fake)
	if err != nil {
		return nil, err
	}

	provider, err := a.provider(cfg.Wallet, chainID, opts.DevWallet)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := jobstore.Open(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open job store: %w", err)
	}
	a.Store = store
	if c, ok := store.(interface{ Close() }); ok {
		a.closers = append(a.closers, c.Close)
	}
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, func() { _ = c.Close() })
	}

	a.Session = session.NewController(provider, binder, logger)
	a.Collection = collection.NewView(logger, a.Metrics)
	a.Mints, err = mint.NewOrchestrator(a.Session, a.Collection, mint.Options{
		Price:          price,
		ConfirmTimeout: cfg.Mint.ConfirmTimeout,
		SuccessDisplay: cfg.Mint.SuccessDisplay,
		Store:          store,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Mints.Observe(a.Metrics)
	a.Session.Subscribe(a.Metrics)
	a.Session.Subscribe(a)
	return a, nil
}

func (a *App) contract(ctx context.Context, price *big.Int, fake bool) (session.Binder, *big.Int, error) {
	address := a.Config.ContractAddress()
	chainID := big.NewInt(a.Config.Chain.ChainID)
	if fake {
		a.logger.Info("using in-memory collection", "contract", address.Hex())
		return nft.NewFakeContract(address, price).Binder(), chainID, nil
	}

	cli, err := nft.Dial(ctx, a.Config.Chain.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, cli.Close)
	if remote, err := cli.ChainID(ctx); err != nil {
		a.logger.Warn("fetch chain id failed, using configured value", "error", err, "chain_id", chainID)
	} else {
		chainID = remote
	}

	contract := nft.NewEthContract(cli, address, a.Config.Mint.PollInterval)
	a.health = contract
	return contract.Binder(), chainID, nil
}

// provider returns nil when no wallet is configured; Connect reports that as
// wallet.ErrNoProvider.
func (a *App) provider(cfg config.WalletConfig, chainID *big.Int, dev bool) (wallet.Provider, error) {
	if !cfg.HasWallet() && !dev {
		a.logger.Warn("no wallet configured, set WALLET_PRIVATE_KEY or WALLET_KEYSTORE_DIR")
		return nil, nil
	}
	switch {
	case cfg.PrivateKey != "":
		return wallet.NewKeyedProvider(cfg.PrivateKey, chainID)
	case cfg.KeystoreDir != "":
		return wallet.NewKeystoreProvider(cfg.KeystoreDir, cfg.Passphrase, chainID)
	case dev:
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate dev key: %w", err)
		}
		a.logger.Info("using ephemeral dev wallet", "account", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return wallet.NewKeyedProvider(hexKey(key), chainID)
	}
	return nil, nil
}

// Connected implements session.Listener by refreshing the collection in the
// background.
func (a *App) Connected(h *nft.Handle, account common.Address) {
	a.Metrics.IncConnect("ok")
	epoch := a.Collection.Epoch()
	if snap := a.Session.Snapshot(); snap.State != session.Connected || snap.Handle != h {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if _, err := a.Collection.RefreshEpoch(ctx, epoch, h, account); err != nil {
			a.logger.Warn("refresh after connect failed", "account", account.Hex(), "error", err)
		}
	}()
}

// Disconnected implements session.Listener.
func (a *App) Disconnected() {
	a.Mints.Abandon()
	a.Collection.Clear()
}

// Connect wraps Session.Connect and counts failures.
func (a *App) Connect(ctx context.Context) (session.Snapshot, error) {
	snap, err := a.Session.Connect(ctx)
	switch {
	case err == nil:
	case errors.Is(err, wallet.ErrNoProvider):
		a.Metrics.IncConnect("no_provider")
	case errors.Is(err, wallet.ErrUserRejected):
		a.Metrics.IncConnect("rejected")
	default:
		a.Metrics.IncConnect("failed")
	}
	return snap, err
}

// Ping checks the chain endpoint when one is in use.
func (a *App) Ping(ctx context.Context) error {
	if a.health == nil {
		return nil
	}
	return a.health.Ping(ctx)
}

// Close releases the RPC client and the job store.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func hexKey(key *ecdsa.PrivateKey) string {
	return common.Bytes2Hex(crypto.FromECDSA(key))
}
