package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// DeploymentConfig represents deployments.json as written after the collection
// contract is deployed.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Deployer  string `json:"deployer"`
	ImageURI  string `json:"imageUri"`
	Contracts struct {
		SimpleNFT string `json:"SimpleNFT"`
	} `json:"contracts"`
}

// AppConfig ties together the deployment file and environment values.
type AppConfig struct {
	Deployment DeploymentConfig
	Chain      ChainConfig
	Wallet     WalletConfig
	Mint       MintConfig
	Service    ServiceConfig
	Store      StoreConfig
}

type ChainConfig struct {
	RPCURL      string `env:"CHAIN_RPC_URL" envDefault:"https://testnet.evm.nodes.onflow.org"`
	ChainID     int64  `env:"CHAIN_ID" envDefault:"545"`
	ExplorerURL string `env:"EXPLORER_URL" envDefault:"https://evm-testnet.flowscan.io"`
	Contract    string `env:"NFT_CONTRACT_ADDRESS"`
	ImageURI    string `env:"NFT_IMAGE_URI"`
}

// WalletConfig selects the signing provider. With neither a key nor a keystore
// directory set, no wallet is available.
type WalletConfig struct {
	PrivateKey  string `env:"WALLET_PRIVATE_KEY"`
	KeystoreDir string `env:"WALLET_KEYSTORE_DIR"`
	Passphrase  string `env:"WALLET_PASSPHRASE"`
}

type MintConfig struct {
	PriceWei       string        `env:"MINT_PRICE_WEI" envDefault:"10000000000000000"`
	ConfirmTimeout time.Duration `env:"MINT_CONFIRM_TIMEOUT" envDefault:"3m"`
	PollInterval   time.Duration `env:"MINT_POLL_INTERVAL" envDefault:"2s"`
	SuccessDisplay time.Duration `env:"MINT_SUCCESS_DISPLAY" envDefault:"3s"`
}

type ServiceConfig struct {
	HTTPPort       int           `env:"API_HTTP_PORT" envDefault:"3000"`
	HMACSecret     string        `env:"API_HMAC_SECRET"`
	HMACClockSkew  time.Duration `env:"API_HMAC_CLOCK_SKEW" envDefault:"60s"`
	IdempotencyTTL time.Duration `env:"API_IDEMPOTENCY_TTL" envDefault:"10m"`
}

type StoreConfig struct {
	Driver string `env:"JOB_STORE" envDefault:"memory"`
	Path   string `env:"JOB_STORE_PATH" envDefault:"./data/mints.db"`
	DSN    string `env:"JOB_STORE_DSN"`
}

const (
	defaultDeploymentsPath = "./deployments.json"
	defaultContractAddress = "0xD8a47Da70D7E828e01fDC4F959fAB5aA52e6fF4b"
	defaultImageURI        = "https://cryptologos.cc/logos/flow-flow-logo.png"
)

// Load aggregates configuration from disk and environment. A missing
// deployments file is not an error; the contract address then comes from the
// environment or the built-in default.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)
	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	if deployCfg != nil {
		cfg.Deployment = *deployCfg
	}

	cfg.applyDeployment()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) applyDeployment() {
	if c.Chain.Contract == "" {
		c.Chain.Contract = c.Deployment.Contracts.SimpleNFT
	}
	if c.Chain.Contract == "" {
		c.Chain.Contract = defaultContractAddress
	}
	if c.Chain.ImageURI == "" {
		c.Chain.ImageURI = c.Deployment.ImageURI
	}
	if c.Chain.ImageURI == "" {
		c.Chain.ImageURI = defaultImageURI
	}
	if c.Deployment.ChainID != 0 && os.Getenv("CHAIN_ID") == "" {
		c.Chain.ChainID = c.Deployment.ChainID
	}
}

// Validate checks the values the orchestration core cannot run without.
func (c *AppConfig) Validate() error {
	if !common.IsHexAddress(c.Chain.Contract) {
		return fmt.Errorf("contract address %q is not a hex address", c.Chain.Contract)
	}
	if _, err := c.Mint.Price(); err != nil {
		return err
	}
	if c.Mint.PollInterval <= 0 {
		return errors.New("mint poll interval must be positive")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("JOB_STORE_DSN is required for the postgres job store")
		}
	default:
		return fmt.Errorf("unknown job store %q", c.Store.Driver)
	}
	return nil
}

// ContractAddress returns the configured collection contract.
func (c *AppConfig) ContractAddress() common.Address {
	return common.HexToAddress(c.Chain.Contract)
}

// Price parses the fixed mint price in wei.
func (m MintConfig) Price() (*big.Int, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(m.PriceWei), 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("invalid mint price: %q", m.PriceWei)
	}
	return price, nil
}

// HasWallet reports whether any signing provider is configured.
func (w WalletConfig) HasWallet() bool {
	return w.PrivateKey != "" || w.KeystoreDir != ""
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
