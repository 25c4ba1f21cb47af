package txworker

import (
	"time"

	"github.com/oniontracex/oniontracex/pkg/models"
)

// Mixer heuristic: a transaction with this many inputs and outputs looks
// like a CoinJoin-style batch rather than an ordinary payment.
const mixerFanThreshold = 10

func satsToBTC(sats int64) float64 {
	return float64(sats) / 1e8
}

// AnalyzeTransactions derives the stored summaries and transfer edges for
// one watched address from its raw explorer history. Pure function; all
// I/O stays in the worker.
func AnalyzeTransactions(addr models.BitcoinAddress, txs []models.ExplorerTx) ([]models.TransactionSummary, []models.TransactionEdge) {
	var summaries []models.TransactionSummary
	var edges []models.TransactionEdge
	edgeSeen := make(map[string]struct{})

	for _, tx := range txs {
		var ts *time.Time
		if tx.Status.Confirmed && tx.Status.BlockTime > 0 {
			t := time.Unix(tx.Status.BlockTime, 0).UTC()
			ts = &t
		}

		var inbound, outbound int64
		for _, vout := range tx.Vout {
			if vout.ScriptPubKeyAddress == addr.Address {
				inbound += vout.Value
			}
		}
		for _, vin := range tx.Vin {
			if vin.Prevout != nil && vin.Prevout.ScriptPubKeyAddress == addr.Address {
				outbound += vin.Prevout.Value
			}
		}

		// Spending dominates: an address appearing on both sides is
		// moving funds out, with change coming back.
		direction := models.DirectionInbound
		amount := inbound
		if outbound > 0 {
			direction = models.DirectionOutbound
			amount = outbound
		}

		fanIn, fanOut := len(tx.Vin), len(tx.Vout)
		summaries = append(summaries, models.TransactionSummary{
			TxID:      tx.Txid,
			AddressID: addr.AddressID,
			Direction: direction,
			Amount:    satsToBTC(amount),
			Timestamp: ts,
			FanIn:     fanIn,
			FanOut:    fanOut,
			IsMixer:   fanIn >= mixerFanThreshold && fanOut >= mixerFanThreshold,
		})

		for _, vin := range tx.Vin {
			if vin.Prevout == nil || vin.Prevout.ScriptPubKeyAddress == "" {
				continue
			}
			for _, vout := range tx.Vout {
				if vout.ScriptPubKeyAddress == "" {
					continue
				}
				key := tx.Txid + "|" + vin.Prevout.ScriptPubKeyAddress + "|" + vout.ScriptPubKeyAddress
				if _, dup := edgeSeen[key]; dup {
					continue
				}
				edgeSeen[key] = struct{}{}
				edges = append(edges, models.TransactionEdge{
					TxID:        tx.Txid,
					FromAddress: vin.Prevout.ScriptPubKeyAddress,
					ToAddress:   vout.ScriptPubKeyAddress,
					Amount:      satsToBTC(vout.Value),
					Timestamp:   ts,
				})
			}
		}
	}
	return summaries, edges
}
