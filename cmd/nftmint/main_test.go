package main

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvMissingFileIsFine(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadEnvSetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("NFTMINT_TEST_VALUE=42\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NFTMINT_TEST_VALUE", "")
	os.Unsetenv("NFTMINT_TEST_VALUE")

	if err := loadEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("NFTMINT_TEST_VALUE"); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
}

func TestFormatEther(t *testing.T) {
	price, _ := new(big.Int).SetString("10000000000000000", 10)
	if got := formatEther(price); got != "0.01" {
		t.Fatalf("expected 0.01, got %s", got)
	}
	if got := formatEther(nil); got != "0" {
		t.Fatalf("expected 0, got %s", got)
	}
}

func TestRootRegistersCommands(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"serve", "mint", "tokens", "status"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("missing %s command: %v", name, err)
		}
	}
}
