package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("ADMIN_ID", "8333494757")
	t.Setenv("LEDGER_RPC_URL", "https://rpc.example.org")
	t.Setenv("TOKEN_CONTRACT", "0xdAC17F958D2ee523a2206206994597C13D831ec7")
	t.Setenv("RECEIVING_ADDRESS", "0x1111111111111111111111111111111111111111")
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.EntryFee != 5_000_000 {
			t.Errorf("expected entry fee 5 USDT in smallest units, got %d", cfg.EntryFee)
		}
		if cfg.CommissionRateBp != 1000 {
			t.Errorf("expected 10%% commission, got %d bp", cfg.CommissionRateBp)
		}
		if cfg.PollAttempts != 36 || cfg.PollInterval != 5*time.Second {
			t.Errorf("unexpected polling defaults: %d / %s", cfg.PollAttempts, cfg.PollInterval)
		}
		if cfg.BlockOffset != 6 {
			t.Errorf("expected commit offset 6, got %d", cfg.BlockOffset)
		}
	})

	t.Run("entry fee scales by token decimals", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ENTRY_FEE", "2.5")
		t.Setenv("TOKEN_DECIMALS", "18")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.EntryFee != 2_500_000_000_000_000_000 {
			t.Errorf("expected 2.5e18, got %d", cfg.EntryFee)
		}
	})

	t.Run("fractional dust is rejected", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ENTRY_FEE", "0.0000001") // below 6-decimal precision

		if _, err := Load(); err == nil {
			t.Fatal("expected an error for sub-precision entry fee")
		}
	})

	t.Run("missing admin id", func(t *testing.T) {
		setRequired(t)
		t.Setenv("ADMIN_ID", "")

		if _, err := Load(); err == nil {
			t.Fatal("expected an error for missing ADMIN_ID")
		}
	})
}
