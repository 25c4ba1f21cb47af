package txworker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oniontracex/oniontracex/pkg/models"
)

func watched() models.BitcoinAddress {
	return models.BitcoinAddress{
		AddressID: "addr-id-1",
		Address:   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Valid:     true,
	}
}

func TestAnalyzeInboundPayment(t *testing.T) {
	addr := watched()
	txs := []models.ExplorerTx{{
		Txid: "tx-1",
		Vin: []models.ExplorerVin{
			{Prevout: &models.ExplorerVout{ScriptPubKeyAddress: "sender-a", Value: 160_000_000}},
		},
		Vout: []models.ExplorerVout{
			{ScriptPubKeyAddress: addr.Address, Value: 150_000_000},
			{ScriptPubKeyAddress: "change-addr", Value: 9_000_000},
		},
		Status: models.ExplorerTxStatus{Confirmed: true, BlockTime: 1700000000},
	}}

	summaries, edges := AnalyzeTransactions(addr, txs)

	assert.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, models.DirectionInbound, s.Direction)
	assert.InDelta(t, 1.5, s.Amount, 1e-9)
	assert.Equal(t, 1, s.FanIn)
	assert.Equal(t, 2, s.FanOut)
	assert.False(t, s.IsMixer)
	assert.NotNil(t, s.Timestamp)

	// One input address fanning to two outputs gives two edges.
	assert.Len(t, edges, 2)
	assert.Equal(t, "sender-a", edges[0].FromAddress)
}

func TestAnalyzeOutboundSpend(t *testing.T) {
	addr := watched()
	txs := []models.ExplorerTx{{
		Txid: "tx-2",
		Vin: []models.ExplorerVin{
			{Prevout: &models.ExplorerVout{ScriptPubKeyAddress: addr.Address, Value: 50_000_000}},
		},
		Vout: []models.ExplorerVout{
			{ScriptPubKeyAddress: "merchant", Value: 40_000_000},
			// Change returns to the watched address; spend still dominates.
			{ScriptPubKeyAddress: addr.Address, Value: 9_000_000},
		},
	}}

	summaries, _ := AnalyzeTransactions(addr, txs)

	assert.Len(t, summaries, 1)
	assert.Equal(t, models.DirectionOutbound, summaries[0].Direction)
	assert.InDelta(t, 0.5, summaries[0].Amount, 1e-9)
	// Unconfirmed transaction carries no timestamp.
	assert.Nil(t, summaries[0].Timestamp)
}

func TestAnalyzeMixerDetection(t *testing.T) {
	addr := watched()

	build := func(fanIn, fanOut int) models.ExplorerTx {
		tx := models.ExplorerTx{Txid: fmt.Sprintf("tx-%dx%d", fanIn, fanOut)}
		for i := 0; i < fanIn; i++ {
			tx.Vin = append(tx.Vin, models.ExplorerVin{
				Prevout: &models.ExplorerVout{ScriptPubKeyAddress: fmt.Sprintf("in-%d", i), Value: 1_000_000},
			})
		}
		for i := 0; i < fanOut; i++ {
			out := fmt.Sprintf("out-%d", i)
			if i == 0 {
				out = addr.Address
			}
			tx.Vout = append(tx.Vout, models.ExplorerVout{ScriptPubKeyAddress: out, Value: 1_000_000})
		}
		return tx
	}

	summaries, edges := AnalyzeTransactions(addr, []models.ExplorerTx{
		build(12, 15),
		build(12, 9), // fan-out below threshold
		build(9, 15), // fan-in below threshold
	})

	assert.Len(t, summaries, 3)
	assert.True(t, summaries[0].IsMixer)
	assert.False(t, summaries[1].IsMixer)
	assert.False(t, summaries[2].IsMixer)

	// Full bipartite edge set for the first transaction alone.
	mixerEdges := 0
	for _, e := range edges {
		if e.TxID == "tx-12x15" {
			mixerEdges++
		}
	}
	assert.Equal(t, 12*15, mixerEdges)
}

func TestAnalyzeSkipsOpaqueInputs(t *testing.T) {
	addr := watched()
	txs := []models.ExplorerTx{{
		Txid: "tx-3",
		Vin: []models.ExplorerVin{
			{Prevout: nil}, // coinbase-style input
			{Prevout: &models.ExplorerVout{ScriptPubKeyAddress: "", Value: 1}},
			{Prevout: &models.ExplorerVout{ScriptPubKeyAddress: "real-sender", Value: 100_000_000}},
		},
		Vout: []models.ExplorerVout{
			{ScriptPubKeyAddress: addr.Address, Value: 100_000_000},
		},
	}}

	_, edges := AnalyzeTransactions(addr, txs)

	assert.Len(t, edges, 1)
	assert.Equal(t, "real-sender", edges[0].FromAddress)
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	summaries, edges := AnalyzeTransactions(watched(), nil)
	assert.Empty(t, summaries)
	assert.Empty(t, edges)
}
