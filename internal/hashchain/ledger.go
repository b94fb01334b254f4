package hashchain

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrChainMismatch is returned by VerifyAndAppend when the existing
// chain fails integrity verification. The chain is left unmutated.
var ErrChainMismatch = errors.New(string(domain.ReasonChainMismatch))

// Ledger is a single-writer, append-only, hash-chained log of decisions.
// All state is owned by one Ledger instance; concurrent callers are
// serialized behind mu, matching the single-mutex-guarded-collection
// idiom used throughout the surrounding service's cache and bus layers.
type Ledger struct {
	mu    sync.Mutex
	chain []domain.LedgerEntry
}

// NewLedger creates a ledger seeded with the genesis entry.
func NewLedger() *Ledger {
	genesis := domain.LedgerEntry{
		Index:          0,
		TransactionID:  domain.GenesisTransactionID,
		FinalRiskScore: 0,
		Decision:       domain.GenesisDecision,
		PreviousHash:   "0",
		DataHash:       "0",
	}
	// The genesis hash is a fixed, cross-implementation test vector:
	// H("0" ‖ "0" ‖ "GENESIS" ‖ "0"). It folds in the literal decision
	// string, not the placeholder transaction ID stored on the entry.
	genesis.CurrentHash = entryHash(genesis.Index, genesis.PreviousHash, domain.GenesisDecision, genesis.FinalRiskScore)

	return &Ledger{chain: []domain.LedgerEntry{genesis}}
}

// entryHash computes H(index ‖ previousHash ‖ transactionID ‖ finalScore).
func entryHash(index int, previousHash, transactionID string, finalScore int) string {
	return Hash(strconv.Itoa(index), previousHash, transactionID, strconv.Itoa(finalScore))
}

// Append links result to the chain and returns the new entry. It fails
// only when result cannot be canonicalized; the chain invariant is not
// checked. Callers that need atomicity against a tampered chain should
// use VerifyAndAppend.
func (l *Ledger) Append(result domain.FinalRiskResult) (domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(result)
}

func (l *Ledger) appendLocked(result domain.FinalRiskResult) (domain.LedgerEntry, error) {
	dataHash, err := Canonical(result)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("hashchain: canonicalize result: %w", err)
	}
	dataHash = Hash(dataHash)

	prev := l.chain[len(l.chain)-1]
	entry := domain.LedgerEntry{
		Index:          len(l.chain),
		TransactionID:  result.TransactionID,
		Timestamp:      result.Timestamp,
		FinalRiskScore: result.FinalRiskScore,
		Decision:       string(result.Decision),
		PreviousHash:   prev.CurrentHash,
		DataHash:       dataHash,
	}
	entry.CurrentHash = entryHash(entry.Index, entry.PreviousHash, entry.TransactionID, entry.FinalRiskScore)

	l.chain = append(l.chain, entry)
	return entry, nil
}

// VerifyIntegrity walks the chain from index 1, checking both hash
// invariants, and returns false on the first mismatch. O(n).
func (l *Ledger) VerifyIntegrity() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verifyLocked()
}

func (l *Ledger) verifyLocked() bool {
	for i := 1; i < len(l.chain); i++ {
		prev := l.chain[i-1]
		cur := l.chain[i]

		if cur.PreviousHash != prev.CurrentHash {
			return false
		}
		want := entryHash(cur.Index, cur.PreviousHash, cur.TransactionID, cur.FinalRiskScore)
		if cur.CurrentHash != want {
			return false
		}
	}
	return true
}

// VerifyAndAppend verifies the existing chain before appending. If
// verification fails, the chain is left unmutated and ErrChainMismatch
// is returned.
func (l *Ledger) VerifyAndAppend(result domain.FinalRiskResult) (domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.verifyLocked() {
		return domain.LedgerEntry{}, ErrChainMismatch
	}
	return l.appendLocked(result)
}

// LatestHash returns the current head hash of the chain.
func (l *Ledger) LatestHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain[len(l.chain)-1].CurrentHash
}

// Chain returns an immutable snapshot of the ledger.
func (l *Ledger) Chain() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LedgerEntry, len(l.chain))
	copy(out, l.chain)
	return out
}

// Len returns the number of entries, including the genesis entry.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chain)
}

// Restore replaces the in-memory chain with entries loaded from
// persistent storage, verifying integrity before accepting them. The
// caller is expected to have listed entries in index order starting
// from the genesis block; a mismatch leaves the ledger at its prior
// state and returns ErrChainMismatch.
func (l *Ledger) Restore(entries []*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	chain := make([]domain.LedgerEntry, len(entries))
	for i, e := range entries {
		chain[i] = *e
	}

	candidate := &Ledger{chain: chain}
	if !candidate.verifyLocked() {
		return ErrChainMismatch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.chain = chain
	return nil
}
