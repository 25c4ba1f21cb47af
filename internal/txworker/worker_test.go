package txworker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oniontracex/oniontracex/internal/config"
	"github.com/oniontracex/oniontracex/pkg/models"
)

type fakeTxStore struct {
	pending  []models.BitcoinAddress
	saveErr  error
	analyzed []string
}

func (f *fakeTxStore) PendingAddresses(context.Context, int) ([]models.BitcoinAddress, error) {
	return f.pending, nil
}

func (f *fakeTxStore) MarkAddressAnalyzed(_ context.Context, addressID string) error {
	f.analyzed = append(f.analyzed, addressID)
	return nil
}

func (f *fakeTxStore) SaveTransactionAnalysis(context.Context, []models.TransactionSummary, []models.TransactionEdge) error {
	return f.saveErr
}

type fakeChain struct {
	txs []models.ExplorerTx
	err error
}

func (f *fakeChain) AddressTransactions(context.Context, string) ([]models.ExplorerTx, error) {
	return f.txs, f.err
}

func TestRunBatchCountsOnlyCompletedAddresses(t *testing.T) {
	// A persisting storage failure must report zero progress so the poll
	// loop backs off to its sleep interval instead of spinning.
	store := &fakeTxStore{
		pending: []models.BitcoinAddress{{AddressID: "a1", Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}},
		saveErr: errors.New("connection refused"),
	}
	chain := &fakeChain{txs: []models.ExplorerTx{{Txid: "t1"}}}

	w := NewWorker(store, chain, config.TxWorkerConfig{BatchSize: 10})
	processed, err := w.runBatch(context.Background())

	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, store.analyzed)
}

func TestRunBatchCountsSuccesses(t *testing.T) {
	store := &fakeTxStore{
		pending: []models.BitcoinAddress{
			{AddressID: "a1", Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"},
			{AddressID: "a2", Address: "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy"},
		},
	}
	chain := &fakeChain{txs: []models.ExplorerTx{{Txid: "t1"}}}

	w := NewWorker(store, chain, config.TxWorkerConfig{BatchSize: 10})
	processed, err := w.runBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []string{"a1", "a2"}, store.analyzed)
}

func TestRunBatchExplorerFailureStillCompletes(t *testing.T) {
	// An unresolvable address is marked analyzed and counts as progress;
	// retrying it would never produce a different answer.
	store := &fakeTxStore{
		pending: []models.BitcoinAddress{{AddressID: "a1", Address: "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"}},
	}
	chain := &fakeChain{err: errors.New("explorer returned 500")}

	w := NewWorker(store, chain, config.TxWorkerConfig{BatchSize: 10})
	processed, err := w.runBatch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"a1"}, store.analyzed)
}
