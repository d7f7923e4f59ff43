package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full process configuration, read once at startup.
// Amounts are kept in token smallest units (USDT: 6 decimals).
type Config struct {
	TelegramToken string
	AdminID       int64

	LedgerURL        string
	TokenContract    string
	ReceivingAddress string
	TokenDecimals    int32

	EntryFee         int64
	CommissionRateBp int64

	BlockOffset  uint64
	PollInterval time.Duration
	PollAttempts int

	RetryAttempts  int
	RetryBaseDelay time.Duration

	DatabasePath string

	LogFile   string
	ErrorFile string
	LogLevel  string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		LedgerURL:        os.Getenv("LEDGER_RPC_URL"),
		TokenContract:    os.Getenv("TOKEN_CONTRACT"),
		ReceivingAddress: os.Getenv("RECEIVING_ADDRESS"),
		TokenDecimals:    6,
		CommissionRateBp: 1000,
		BlockOffset:      6,
		PollInterval:     5 * time.Second,
		PollAttempts:     36,
		RetryAttempts:    3,
		RetryBaseDelay:   500 * time.Millisecond,
		DatabasePath:     envOr("DATABASE_PATH", "fortuna.db"),
		LogFile:          os.Getenv("LOG_FILE"),
		ErrorFile:        os.Getenv("ERROR_LOG_FILE"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("config: TELEGRAM_TOKEN is required")
	}
	if cfg.LedgerURL == "" {
		return nil, fmt.Errorf("config: LEDGER_RPC_URL is required")
	}
	if cfg.TokenContract == "" || cfg.ReceivingAddress == "" {
		return nil, fmt.Errorf("config: TOKEN_CONTRACT and RECEIVING_ADDRESS are required")
	}

	adminID, err := strconv.ParseInt(os.Getenv("ADMIN_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("config: invalid ADMIN_ID: %w", err)
	}
	cfg.AdminID = adminID

	if v := os.Getenv("TOKEN_DECIMALS"); v != "" {
		d, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TOKEN_DECIMALS: %w", err)
		}
		cfg.TokenDecimals = int32(d)
	}

	// Entry fee is given as a human decimal ("5" meaning 5 USDT) and
	// scaled to smallest units here, once.
	fee, err := decimal.NewFromString(envOr("ENTRY_FEE", "5"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid ENTRY_FEE: %w", err)
	}
	scaled := fee.Shift(cfg.TokenDecimals)
	if !scaled.IsInteger() || !scaled.IsPositive() {
		return nil, fmt.Errorf("config: ENTRY_FEE %s does not fit token precision", fee)
	}
	cfg.EntryFee = scaled.IntPart()

	if v := os.Getenv("COMMISSION_RATE_BP"); v != "" {
		bp, err := strconv.ParseInt(v, 10, 64)
		if err != nil || bp < 0 || bp > 10000 {
			return nil, fmt.Errorf("config: invalid COMMISSION_RATE_BP: %q", v)
		}
		cfg.CommissionRateBp = bp
	}

	if v := os.Getenv("BLOCK_OFFSET"); v != "" {
		offset, err := strconv.ParseUint(v, 10, 64)
		if err != nil || offset == 0 {
			return nil, fmt.Errorf("config: invalid BLOCK_OFFSET: %q", v)
		}
		cfg.BlockOffset = offset
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = interval
	}

	if v := os.Getenv("POLL_ATTEMPTS"); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil || attempts <= 0 {
			return nil, fmt.Errorf("config: invalid POLL_ATTEMPTS: %q", v)
		}
		cfg.PollAttempts = attempts
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
