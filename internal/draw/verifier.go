package draw

import (
	"context"
	"errors"
	"math/big"

	"fortuna/internal/ledger"
	"fortuna/internal/logger"
	"fortuna/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Ledger is the read-only chain surface the engine needs.
type Ledger interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (common.Hash, error)
	TransactionReceipt(ctx context.Context, txid string) (*types.Receipt, error)
}

// keccak256("Transfer(address,address,uint256)")
var transferTopic = common.BytesToHash(crypto.Keccak256([]byte("Transfer(address,address,uint256)")))

// Verifier checks a submitted txid against the chain and, when the
// payment holds up, enrolls the payer atomically with the payment
// record.
type Verifier struct {
	ledger    Ledger
	store     storage.Storage
	token     common.Address
	recipient common.Address
	entryFee  int64
}

func NewVerifier(l Ledger, store storage.Storage, token, recipient common.Address, entryFee int64) *Verifier {
	return &Verifier{
		ledger:    l,
		store:     store,
		token:     token,
		recipient: recipient,
		entryFee:  entryFee,
	}
}

// VerifyAndEnroll returns the allocated ticket number and the verified
// amount. Failure modes: *RejectionError for a bad payment,
// storage.ErrAlreadyEnrolled for an identity that already holds a
// ticket this round.
func (v *Verifier) VerifyAndEnroll(ctx context.Context, identity, txid string) (int64, int64, error) {

	// Replay check first: no ledger call for a txid we have seen.
	used, err := v.store.HasPayment(txid)
	if err != nil {
		return 0, 0, err
	}
	if used {
		return 0, 0, &RejectionError{Reason: ReasonAlreadyUsed}
	}

	receipt, err := v.ledger.TransactionReceipt(ctx, txid)
	if errors.Is(err, ledger.ErrTxNotFound) {
		return 0, 0, &RejectionError{Reason: ReasonNotFound}
	}
	if err != nil {
		return 0, 0, err
	}

	amount, ok := v.matchTransfer(receipt)
	if !ok {
		return 0, 0, &RejectionError{Reason: ReasonNoMatchingTransfer}
	}
	if amount < v.entryFee {
		return 0, 0, &RejectionError{Reason: ReasonInsufficientAmount, Amount: amount}
	}

	ticket, err := v.store.RecordPaymentAndEnroll(txid, identity, amount)
	if errors.Is(err, storage.ErrTxidUsed) {
		// Lost a race with a concurrent submission of the same txid;
		// the unique index is the arbiter.
		return 0, 0, &RejectionError{Reason: ReasonAlreadyUsed}
	}
	if err != nil {
		return 0, 0, err
	}

	logger.Info("payment verified, participant enrolled",
		zap.String("txid", txid),
		zap.Int64("ticket", ticket),
		zap.Int64("amount", amount),
	)
	return ticket, amount, nil
}

// matchTransfer scans the receipt logs for a Transfer of the expected
// token to the receiving address and decodes its amount. A reverted
// transaction matches nothing.
func (v *Verifier) matchTransfer(receipt *types.Receipt) (int64, bool) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, false
	}

	for _, entry := range receipt.Logs {
		if entry.Address != v.token {
			continue
		}
		if len(entry.Topics) != 3 || entry.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(entry.Topics[2].Bytes()) != v.recipient {
			continue
		}

		amount := new(big.Int).SetBytes(entry.Data)
		if !amount.IsInt64() {
			// Does not fit the token's fixed-point range; treat as
			// malformed rather than overflow silently.
			continue
		}
		return amount.Int64(), true
	}

	return 0, false
}
