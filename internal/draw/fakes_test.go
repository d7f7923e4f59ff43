package draw

import (
	"context"
	"math/big"
	"path/filepath"
	"sync"
	"testing"

	"fortuna/internal/ledger"
	"fortuna/internal/logger"
	"fortuna/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func init() {
	logger.Initialize(logger.Configuration{Level: "error", Console: true})
}

// fakeLedger serves canned answers and counts calls, so tests can
// assert the verifier short-circuits before touching the chain.
type fakeLedger struct {
	mu sync.Mutex

	height   uint64
	hashes   map[uint64]common.Hash
	receipts map[string]*types.Receipt

	// pendingPolls: answer this many BlockHash calls with
	// ledger.ErrBlockPending before consulting hashes.
	pendingPolls int

	receiptCalls   int
	blockHashCalls int
}

func (f *fakeLedger) CurrentHeight(context.Context) (uint64, error) {
	return f.height, nil
}

func (f *fakeLedger) BlockHash(_ context.Context, height uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.blockHashCalls++
	if f.blockHashCalls <= f.pendingPolls {
		return common.Hash{}, ledger.ErrBlockPending
	}
	if hash, ok := f.hashes[height]; ok {
		return hash, nil
	}
	return common.Hash{}, ledger.ErrBlockPending
}

func (f *fakeLedger) TransactionReceipt(_ context.Context, txid string) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.receiptCalls++
	if receipt, ok := f.receipts[txid]; ok {
		return receipt, nil
	}
	return nil, ledger.ErrTxNotFound
}

func (f *fakeLedger) receiptCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiptCalls
}

// fakeNotifier collects everything the coordinator publishes.
type fakeNotifier struct {
	mu        sync.Mutex
	published []string
	updated   []string

	committed chan struct{}
	once      sync.Once
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{committed: make(chan struct{})}
}

func (f *fakeNotifier) Publish(_ int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.published = append(f.published, text)
	f.once.Do(func() { close(f.committed) })
	return len(f.published), nil
}

func (f *fakeNotifier) UpdateMessage(_ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updated = append(f.updated, text)
	return nil
}

func newTestStorage(t *testing.T) *storage.SqliteStorage {
	t.Helper()

	store, err := storage.NewSqliteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func transferReceipt(token, from, to common.Address, amount int64) *types.Receipt {
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Address: token,
			Topics: []common.Hash{
				transferTopic,
				common.BytesToHash(from.Bytes()),
				common.BytesToHash(to.Bytes()),
			},
			Data: common.BigToHash(big.NewInt(amount)).Bytes(),
		}},
	}
}
