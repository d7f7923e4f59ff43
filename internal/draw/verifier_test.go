package draw

import (
	"context"
	"errors"
	"testing"

	"fortuna/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testToken     = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	testRecipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testPayer     = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

const (
	txidA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	txidB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	txidC = "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

func newTestVerifier(t *testing.T, chain *fakeLedger) (*Verifier, storage.Storage) {
	t.Helper()
	store := newTestStorage(t)
	return NewVerifier(chain, store, testToken, testRecipient, 5*microUSDT), store
}

func rejectedWith(t *testing.T, err error, reason RejectReason) *RejectionError {
	t.Helper()
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rejection.Reason != reason {
		t.Fatalf("expected reason %s, got %s", reason, rejection.Reason)
	}
	return rejection
}

func TestVerifyAndEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("valid payment enrolls with sequential tickets", func(t *testing.T) {
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(testToken, testPayer, testRecipient, 5*microUSDT),
			txidB: transferReceipt(testToken, testPayer, testRecipient, 7*microUSDT),
		}}
		verifier, _ := newTestVerifier(t, chain)

		ticket, amount, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ticket != 1 || amount != 5*microUSDT {
			t.Errorf("expected ticket 1 / 5 USDT, got %d / %d", ticket, amount)
		}

		ticket, _, err = verifier.VerifyAndEnroll(ctx, "@bob", txidB)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ticket != 2 {
			t.Errorf("expected ticket 2, got %d", ticket)
		}
	})

	t.Run("used txid is rejected before any ledger call", func(t *testing.T) {
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(testToken, testPayer, testRecipient, 5*microUSDT),
		}}
		verifier, _ := newTestVerifier(t, chain)

		if _, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA); err != nil {
			t.Fatalf("setup enrollment failed: %v", err)
		}
		callsAfterSetup := chain.receiptCallCount()

		_, _, err := verifier.VerifyAndEnroll(ctx, "@mallory", txidA)
		rejectedWith(t, err, ReasonAlreadyUsed)

		if chain.receiptCallCount() != callsAfterSetup {
			t.Errorf("replay check hit the ledger: %d extra calls",
				chain.receiptCallCount()-callsAfterSetup)
		}
	})

	t.Run("unknown txid", func(t *testing.T) {
		verifier, _ := newTestVerifier(t, &fakeLedger{})
		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidC)
		rejectedWith(t, err, ReasonNotFound)
	})

	t.Run("transfer of a different token", func(t *testing.T) {
		otherToken := common.HexToAddress("0x3333333333333333333333333333333333333333")
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(otherToken, testPayer, testRecipient, 5*microUSDT),
		}}
		verifier, _ := newTestVerifier(t, chain)

		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA)
		rejectedWith(t, err, ReasonNoMatchingTransfer)
	})

	t.Run("transfer to a different recipient", func(t *testing.T) {
		elsewhere := common.HexToAddress("0x4444444444444444444444444444444444444444")
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(testToken, testPayer, elsewhere, 5*microUSDT),
		}}
		verifier, _ := newTestVerifier(t, chain)

		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA)
		rejectedWith(t, err, ReasonNoMatchingTransfer)
	})

	t.Run("reverted transaction", func(t *testing.T) {
		receipt := transferReceipt(testToken, testPayer, testRecipient, 5*microUSDT)
		receipt.Status = types.ReceiptStatusFailed
		chain := &fakeLedger{receipts: map[string]*types.Receipt{txidA: receipt}}
		verifier, _ := newTestVerifier(t, chain)

		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA)
		rejectedWith(t, err, ReasonNoMatchingTransfer)
	})

	t.Run("insufficient amount reports what arrived", func(t *testing.T) {
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(testToken, testPayer, testRecipient, 3*microUSDT),
		}}
		verifier, _ := newTestVerifier(t, chain)

		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA)
		rejection := rejectedWith(t, err, ReasonInsufficientAmount)
		if rejection.Amount != 3*microUSDT {
			t.Errorf("expected diagnostic amount 3 USDT, got %d", rejection.Amount)
		}
	})

	t.Run("second payment by an enrolled identity", func(t *testing.T) {
		chain := &fakeLedger{receipts: map[string]*types.Receipt{
			txidA: transferReceipt(testToken, testPayer, testRecipient, 5*microUSDT),
			txidB: transferReceipt(testToken, testPayer, testRecipient, 5*microUSDT),
		}}
		verifier, store := newTestVerifier(t, chain)

		if _, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidA); err != nil {
			t.Fatalf("setup enrollment failed: %v", err)
		}

		_, _, err := verifier.VerifyAndEnroll(ctx, "@alice", txidB)
		if !errors.Is(err, storage.ErrAlreadyEnrolled) {
			t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
		}

		// the whole write rolled back: txidB stays spendable
		used, err := store.HasPayment(txidB)
		if err != nil {
			t.Fatalf("HasPayment failed: %v", err)
		}
		if used {
			t.Error("rejected enrollment must not burn the txid")
		}
	})
}
