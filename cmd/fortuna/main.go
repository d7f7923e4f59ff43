package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fortuna/internal/bot"
	"fortuna/internal/config"
	"fortuna/internal/draw"
	"fortuna/internal/ledger"
	"fortuna/internal/logger"
	"fortuna/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Initialize(logger.Configuration{
		LogFile:   cfg.LogFile,
		ErrorFile: cfg.ErrorFile,
		Level:     cfg.LogLevel,
		Console:   true,
	})
	defer logger.Sync()

	store, err := storage.NewSqliteStorage(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage initialization failed: " + err.Error())
	}
	defer store.Close()

	chain, err := ledger.Dial(ctx, cfg.LedgerURL, cfg.RetryAttempts, cfg.RetryBaseDelay)
	if err != nil {
		logger.Fatal("ledger client initialization failed: " + err.Error())
	}
	defer chain.Close()

	verifier := draw.NewVerifier(
		chain,
		store,
		common.HexToAddress(cfg.TokenContract),
		common.HexToAddress(cfg.ReceivingAddress),
		cfg.EntryFee,
	)

	dispatcher, err := bot.New(cfg, store, verifier)
	if err != nil {
		logger.Fatal("bot initialization failed: " + err.Error())
	}

	coordinator := draw.NewCoordinator(chain, store, dispatcher, draw.Options{
		EntryFee:         cfg.EntryFee,
		CommissionRateBp: cfg.CommissionRateBp,
		TokenDecimals:    cfg.TokenDecimals,
		BlockOffset:      cfg.BlockOffset,
		PollInterval:     cfg.PollInterval,
		PollAttempts:     cfg.PollAttempts,
	})
	dispatcher.SetCoordinator(coordinator)

	go dispatcher.Start()

	select {
	case <-waitForInterrupt():
		fmt.Println("Получен сигнал прерывания")
	case <-ctx.Done():
	}

	dispatcher.Stop()
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
