package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.Contract != defaultContractAddress {
		t.Fatalf("expected default contract, got %s", cfg.Chain.Contract)
	}
	if cfg.Chain.ChainID != 545 {
		t.Fatalf("expected chain id 545, got %d", cfg.Chain.ChainID)
	}
	price, err := cfg.Mint.Price()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.String() != "10000000000000000" {
		t.Fatalf("unexpected price %s", price)
	}
	if cfg.Mint.SuccessDisplay != 3*time.Second {
		t.Fatalf("unexpected success display %s", cfg.Mint.SuccessDisplay)
	}
	if cfg.Wallet.HasWallet() {
		t.Fatalf("expected no wallet configured")
	}
}

func TestLoadDeploymentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.json")
	body := `{"chainId": 31337, "deployer": "0x01", "imageUri": "ipfs://img", "contracts": {"SimpleNFT": "0x00000000000000000000000000000000000000aa"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DEPLOYMENTS_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ContractAddress() != common.HexToAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("unexpected contract %s", cfg.ContractAddress().Hex())
	}
	if cfg.Chain.ChainID != 31337 {
		t.Fatalf("expected chain id from deployments, got %d", cfg.Chain.ChainID)
	}
	if cfg.Chain.ImageURI != "ipfs://img" {
		t.Fatalf("unexpected image uri %s", cfg.Chain.ImageURI)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "missing.json"))

	t.Run("price", func(t *testing.T) {
		t.Setenv("MINT_PRICE_WEI", "0.01")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for decimal price")
		}
	})
	t.Run("store", func(t *testing.T) {
		t.Setenv("JOB_STORE", "postgres")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for postgres without dsn")
		}
	})
	t.Run("contract", func(t *testing.T) {
		t.Setenv("NFT_CONTRACT_ADDRESS", "not-an-address")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for bad address")
		}
	})
}
