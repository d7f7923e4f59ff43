package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"fortuna/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Definitive-but-expected outcomes, distinct from transport failures.
var (
	// ErrBlockPending: the requested height is not mined yet. The caller
	// decides how long to keep asking.
	ErrBlockPending = errors.New("ledger: block not yet mined")
	// ErrTxNotFound: the node still does not know the transaction after
	// the whole retry budget.
	ErrTxNotFound = errors.New("ledger: transaction not found")
)

// Client is a thin read-only JSON-RPC binding: current height, header
// by height, receipt by hash. Every call gets a bounded retry with
// linear backoff (attempt n waits n × baseDelay).
type Client struct {
	eth       *ethclient.Client
	attempts  int
	baseDelay time.Duration
}

func Dial(ctx context.Context, url string, attempts int, baseDelay time.Duration) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:       eth,
		attempts:  attempts,
		baseDelay: baseDelay,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

type fetchFunc[T any] func() (T, error)

func withRetry[T any](ctx context.Context, attempts int, baseDelay time.Duration, retryable func(error) bool, fn fetchFunc[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		logger.Debug("ledger call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * baseDelay):
		}
	}

	return zero, lastErr
}

func anyError(error) bool { return true }

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c.attempts, c.baseDelay, anyError, func() (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
}

// BlockHash returns ErrBlockPending for a height the chain has not
// reached; that answer is well-formed and is not retried.
func (c *Client) BlockHash(ctx context.Context, height uint64) (common.Hash, error) {
	notPending := func(err error) bool { return !errors.Is(err, ethereum.NotFound) }

	header, err := withRetry(ctx, c.attempts, c.baseDelay, notPending, func() (*types.Header, error) {
		return c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	})
	if errors.Is(err, ethereum.NotFound) {
		return common.Hash{}, ErrBlockPending
	}
	if err != nil {
		return common.Hash{}, err
	}

	return header.Hash(), nil
}

// TransactionReceipt retries a not-found answer too: the transaction
// may not have propagated yet. Once the budget is spent the not-found
// becomes the definitive ErrTxNotFound.
func (c *Client) TransactionReceipt(ctx context.Context, txid string) (*types.Receipt, error) {
	receipt, err := withRetry(ctx, c.attempts, c.baseDelay, anyError, func() (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, common.HexToHash(txid))
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}

	return receipt, nil
}
