package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"RPC_URL":                    "https://rpc.example.com",
		"BUNDLE_ENDPOINT_URL":        "https://bundles.example.com",
		"WALLET_PRIVATE_KEY":         "5Kd3NBUAdUnhyzenEwVLy9pBKxSwXvE9FMPyR4UKZvpe",
		"TRADE_BASE_AMOUNT_LAMPORTS": "100000000",
		"QUEUE_URL":                  "redis://localhost:6379",
	}
	for k, v := range env {
		os.Setenv(k, v)
	}
	t.Cleanup(func() {
		for k := range env {
			os.Unsetenv(k)
		}
	})
}

func TestLoadRequiresRPCURL(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("RPC_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when RPC_URL is unset")
	}
}

func TestLoadRequiresWalletKey(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("WALLET_PRIVATE_KEY")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when WALLET_PRIVATE_KEY is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	m, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	trading := m.GetTrading()
	if trading.SlippageBps != 500 {
		t.Errorf("SlippageBps = %d, want default 500", trading.SlippageBps)
	}
	if !trading.AutoTradingEnabled {
		t.Error("AutoTradingEnabled should default true")
	}

	cfg := m.Get()
	if cfg.Queue.SignalsList != "signals" {
		t.Errorf("SignalsList = %q, want %q", cfg.Queue.SignalsList, "signals")
	}
	if cfg.Admin.ListenPort != 8089 {
		t.Errorf("ListenPort = %d, want 8089", cfg.Admin.ListenPort)
	}
}

func TestLoadHonorsOverride(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SLIPPAGE_BPS", "750")
	defer os.Unsetenv("SLIPPAGE_BPS")

	m, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := m.GetTrading().SlippageBps; got != 750 {
		t.Errorf("SlippageBps = %d, want 750", got)
	}
}

func TestWatchControlDirTogglesAutoTrading(t *testing.T) {
	setRequiredEnv(t)

	m, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	dir := t.TempDir()
	if err := m.WatchControlDir(dir); err != nil {
		t.Fatalf("WatchControlDir failed: %v", err)
	}
	defer m.Close()

	if !m.GetTrading().AutoTradingEnabled {
		t.Fatal("expected auto-trading enabled with no marker file present")
	}
}
