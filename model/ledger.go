/*
Copyright 2025 Bravemoney Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the direction of a ledger transaction.
type TransactionKind string

const (
	KindCredit TransactionKind = "credit"
	KindDebit  TransactionKind = "debit"
)

// Transaction is a single immutable entry in a ledger's transaction log.
type Transaction struct {
	ID        string          `json:"id"`
	Kind      TransactionKind `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
}

// LedgerState is a per-owner balance plus its transaction log, ordered
// newest-first. Version is a monotonic counter bumped on every persisted
// write; remote writes verify it compare-and-set style.
type LedgerState struct {
	Balance      decimal.Decimal `json:"balance"`
	Transactions []Transaction   `json:"transactions"`
	Version      int64           `json:"version"`
}

// DefaultState returns the empty ledger: zero balance, no transactions.
func DefaultState() LedgerState {
	return LedgerState{
		Balance:      decimal.Zero,
		Transactions: []Transaction{},
	}
}

// NewTransaction builds a transaction with a fresh id and the current time.
func NewTransaction(kind TransactionKind, amount decimal.Decimal, note string) Transaction {
	return Transaction{
		ID:        GenerateUUIDWithSuffix("txn"),
		Kind:      kind,
		Amount:    amount,
		Note:      note,
		CreatedAt: time.Now(),
	}
}

// Prepend returns a copy of the state with txn at the front of the log and the
// balance adjusted by the transaction's signed amount.
func (s LedgerState) Prepend(txn Transaction) LedgerState {
	next := LedgerState{
		Balance:      s.Balance,
		Transactions: make([]Transaction, 0, len(s.Transactions)+1),
		Version:      s.Version,
	}
	next.Transactions = append(next.Transactions, txn)
	next.Transactions = append(next.Transactions, s.Transactions...)
	if txn.Kind == KindDebit {
		next.Balance = s.Balance.Sub(txn.Amount)
	} else {
		next.Balance = s.Balance.Add(txn.Amount)
	}
	return next
}

// Recompute returns the running sum of credits minus debits in the log. The
// balance field is maintained incrementally and is not forced to match this;
// the helper exists for audits.
func (s LedgerState) Recompute() decimal.Decimal {
	total := decimal.Zero
	for _, txn := range s.Transactions {
		if txn.Kind == KindDebit {
			total = total.Sub(txn.Amount)
		} else {
			total = total.Add(txn.Amount)
		}
	}
	return total
}

// HasTransaction reports whether the log contains a transaction with the id.
func (s LedgerState) HasTransaction(id string) bool {
	for _, txn := range s.Transactions {
		if txn.ID == id {
			return true
		}
	}
	return false
}

// ToDocument renders the state as a generic JSON-shaped document, the form in
// which it is embedded inside a wallet document.
func (s LedgerState) ToDocument() map[string]interface{} {
	raw, _ := json.Marshal(s)
	var doc map[string]interface{}
	_ = json.Unmarshal(raw, &doc)
	return doc
}

// DecodeError describes why a persisted value could not be decoded into a
// LedgerState.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ledger state decode failed: %s", e.Reason)
}

// DecodeLedgerState decodes an untyped persisted value into a LedgerState.
// The envelope must be an object; within it, missing or ill-typed fields fall
// back to their defaults and individually malformed transactions are dropped
// while the rest are kept. The balance is clamped to zero from below.
func DecodeLedgerState(raw interface{}) (LedgerState, error) {
	if raw == nil {
		return LedgerState{}, &DecodeError{Reason: "nil value"}
	}
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return LedgerState{}, &DecodeError{Reason: fmt.Sprintf("expected object, got %T", raw)}
	}

	state := DefaultState()
	if balance, ok := toDecimal(doc["balance"]); ok {
		if balance.Sign() < 0 {
			balance = decimal.Zero
		}
		state.Balance = balance
	}
	if version, ok := toInt64(doc["version"]); ok && version > 0 {
		state.Version = version
	}
	if entries, ok := doc["transactions"].([]interface{}); ok {
		for _, entry := range entries {
			if txn, ok := decodeTransaction(entry); ok {
				state.Transactions = append(state.Transactions, txn)
			}
		}
	}
	return state, nil
}

// Normalize repairs an arbitrary persisted value into a well-formed
// LedgerState. It is total: any input, including nil, arrays, or partially
// typed objects, yields a valid state. Decode failure maps to the default
// state at this boundary, by policy.
func Normalize(raw interface{}) LedgerState {
	state, err := DecodeLedgerState(raw)
	if err != nil {
		return DefaultState()
	}
	return state
}

// NormalizeJSON normalizes a raw JSON payload, treating unparseable bytes the
// same as any other malformed input.
func NormalizeJSON(raw []byte) LedgerState {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return DefaultState()
	}
	return Normalize(value)
}

func decodeTransaction(raw interface{}) (Transaction, bool) {
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return Transaction{}, false
	}
	kind, _ := doc["kind"].(string)
	if TransactionKind(kind) != KindCredit && TransactionKind(kind) != KindDebit {
		return Transaction{}, false
	}
	amount, ok := toDecimal(doc["amount"])
	if !ok || amount.Sign() < 0 {
		return Transaction{}, false
	}
	txn := Transaction{
		Kind:   TransactionKind(kind),
		Amount: amount,
	}
	if id, ok := doc["id"].(string); ok {
		txn.ID = id
	}
	if note, ok := doc["note"].(string); ok {
		txn.Note = note
	}
	if created, ok := doc["created_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			txn.CreatedAt = ts
		}
	}
	return txn, true
}

func toDecimal(raw interface{}) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case decimal.Decimal:
		return v, true
	}
	return decimal.Decimal{}, false
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
