package models

// Esplora-style explorer payloads for GET /address/{addr}/txs.
// Only the fields the transaction worker consumes are modelled; the
// explorer returns far more and the rest is ignored on decode.

// ExplorerVout is one transaction output as the explorer reports it.
type ExplorerVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"` // satoshis
}

// ExplorerVin is one transaction input. Prevout carries the address and
// value of the spent output when the explorer can resolve it.
type ExplorerVin struct {
	Txid    string        `json:"txid"`
	Vout    uint32        `json:"vout"`
	Prevout *ExplorerVout `json:"prevout"`
}

// ExplorerTxStatus is the confirmation state of a transaction.
type ExplorerTxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
	BlockTime   int64 `json:"block_time"`
}

// ExplorerTx is one transaction in an address history response.
type ExplorerTx struct {
	Txid   string           `json:"txid"`
	Vin    []ExplorerVin    `json:"vin"`
	Vout   []ExplorerVout   `json:"vout"`
	Status ExplorerTxStatus `json:"status"`
}
