package domain

// GenesisDecision is the sentinel decision string used only at index 0.
const GenesisDecision = "GENESIS"

// GenesisTransactionID is the sentinel transaction ID used only at index 0.
const GenesisTransactionID = "00000000-0000-0000-0000-000000000000"

// LedgerEntry is one link in the tamper-evident hash chain.
type LedgerEntry struct {
	Index          int    `json:"index"`
	TransactionID  string `json:"transactionId"`
	Timestamp      int64  `json:"timestamp"` // ingestion time, milliseconds since epoch
	FinalRiskScore int    `json:"finalRiskScore"`
	Decision       string `json:"decision"`
	PreviousHash   string `json:"previousHash"`
	CurrentHash    string `json:"currentHash"`
	DataHash       string `json:"dataHash"`
}
