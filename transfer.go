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

package bravemoney

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bravemoney/bravemoney/internal/apierror"
	redlock "github.com/bravemoney/bravemoney/internal/lock"
	"github.com/bravemoney/bravemoney/model"
	"github.com/bravemoney/bravemoney/store"
)

const (
	intentStatusPending  = "pending"
	intentStatusComplete = "complete"
)

// Transfer moves amount from the caller's ledger to the target account's
// ledger. The two legs are persisted independently: the debit commits first,
// then the credit. A write-ahead intent record makes an interrupted transfer
// recoverable by the sweep in RecoverPendingTransfers; when the credit leg
// cannot be applied the operation reports PARTIAL_FAILURE with the debit
// already persisted.
func (l *Bravemoney) Transfer(ctx context.Context, targetAccount string, amount float64, note string) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	target := model.CanonicalAccountNumber(targetAccount)
	if !model.IsValidAccountNumber(target) {
		state := l.store.Get(ctx, l.effectiveOwner(ctx, uid))
		return failureResult(apierror.ErrInvalidAccount, fmt.Sprintf("%s is not a valid account number", targetAccount), state), nil
	}

	ownAccount, err := l.EnsureAccount(ctx)
	if err != nil {
		return nil, err
	}
	sender := l.effectiveOwner(ctx, uid)
	if target == ownAccount || target == sender.AccountNumber {
		state := l.store.Get(ctx, sender)
		return failureResult(apierror.ErrSelfTransfer, "cannot transfer to your own account", state), nil
	}

	if !validAmount(amount) {
		state := l.store.Get(ctx, sender)
		return failureResult(apierror.ErrInvalidAmount, "amount must be a positive number", state), nil
	}
	value := toAmount(amount)

	senderState := l.store.Get(ctx, sender)
	if senderState.Balance.LessThan(value) {
		return failureResult(apierror.ErrInsufficientBalance,
			fmt.Sprintf("balance %s cannot cover %s", senderState.Balance.StringFixed(2), value.StringFixed(2)), senderState), nil
	}

	receiver, ok := l.ResolveOwner(ctx, target)
	if !ok {
		return failureResult(apierror.ErrAccountNotFound, fmt.Sprintf("no account found for %s", target), senderState), nil
	}

	unlock := l.lockBoth(ctx, sender, receiver)
	if unlock == nil {
		return failureResult(apierror.ErrStorageUnavailable, "could not serialize transfer", senderState), nil
	}
	defer unlock()

	// Re-read under the lock.
	senderState = l.store.Get(ctx, sender)
	if senderState.Balance.LessThan(value) {
		return failureResult(apierror.ErrInsufficientBalance,
			fmt.Sprintf("balance %s cannot cover %s", senderState.Balance.StringFixed(2), value.StringFixed(2)), senderState), nil
	}
	// The source the receiver sees is the ledger the debit actually hits: the
	// linked account when the caller operates through a link.
	senderAccount := sender.AccountNumber
	if senderAccount == "" {
		senderAccount = ownAccount
	}
	debitTxn := model.NewTransaction(model.KindDebit, value, transferNote("Transfer to", target, note))
	creditTxn := model.NewTransaction(model.KindCredit, value, transferNote("Transfer from", senderAccount, note))

	intentID := l.writeIntent(ctx, senderAccount, target, value, note, debitTxn.ID, creditTxn.ID)

	// Debit leg.
	senderNext, persistedSender, failed := l.applyLeg(ctx, sender, debitTxn)
	if failed {
		l.completeIntent(ctx, intentID) // nothing moved, intent is moot
		return failureResult(apierror.ErrStorageUnavailable, "could not persist debit leg", senderState), nil
	}

	// Credit leg. The debit is already committed: failure here is a partial
	// failure, left to the recovery sweep via the pending intent.
	if _, _, failed := l.applyLeg(ctx, receiver, creditTxn); failed {
		return failureResult(apierror.ErrPartialFailure,
			fmt.Sprintf("debited %s but could not credit %s; recovery pending", value.StringFixed(2), target), senderNext), nil
	}

	l.completeIntent(ctx, intentID)

	result := successResult(fmt.Sprintf("Transferred %s to %s", value.StringFixed(2), target), senderNext, persistedSender)
	result.AccountNumber = sender.AccountNumber
	return result, nil
}

// applyLeg persists one transaction onto an owner's ledger, retrying once on
// a version conflict and skipping the append when the transaction id is
// already present (idempotent under recovery).
func (l *Bravemoney) applyLeg(ctx context.Context, owner store.Owner, txn model.Transaction) (model.LedgerState, bool, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		state := l.store.Get(ctx, owner)
		if state.HasTransaction(txn.ID) {
			return state, false, false
		}
		next := state.Prepend(txn)
		next.Version = state.Version + 1

		persisted, err := l.store.Set(ctx, owner, next)
		if err == store.ErrVersionConflict {
			continue
		}
		if err != nil {
			return state, false, true
		}
		return next, persisted, false
	}
	return model.LedgerState{}, false, true
}

func (l *Bravemoney) lockBoth(ctx context.Context, a, b store.Owner) func() {
	keys := []string{a.CacheKey(), b.CacheKey()}
	sort.Strings(keys)
	if keys[0] == keys[1] {
		keys = keys[:1]
	}

	held := make([]redlock.Locker, 0, len(keys))
	for _, key := range keys {
		locker := l.locks.ForOwner(key)
		if err := locker.Lock(ctx); err != nil {
			logrus.WithError(err).Warn("transfer lock failed")
			for i := len(held) - 1; i >= 0; i-- {
				_ = held[i].Unlock(ctx)
			}
			return nil
		}
		held = append(held, locker)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(ctx); err != nil {
				logrus.WithError(err).Warn("transfer unlock failed")
			}
		}
	}
}

// writeIntent records the transfer ahead of its legs so an interruption
// between them can be finished later. Remote-only; with no remote store both
// legs share the local cache and an interruption cannot strand a leg.
func (l *Bravemoney) writeIntent(ctx context.Context, from, to string, amount decimal.Decimal, note, debitTxnID, creditTxnID string) string {
	if !l.store.RemoteEnabled() {
		return ""
	}
	intentID := model.GenerateUUIDWithSuffix("itt")
	doc := store.Document{
		"from_account":    from,
		"to_account":      to,
		"amount":          amount.String(),
		"note":            note,
		"debit_txn_id":    debitTxnID,
		"credit_txn_id":   creditTxnID,
		store.FieldStatus: intentStatusPending,
		"created_at":      time.Now().Format(time.RFC3339Nano),
	}
	if err := l.store.Remote().SetDocument(ctx, store.CollectionIntents, intentID, doc, false); err != nil {
		logrus.WithError(err).Warn("transfer intent write failed")
		return ""
	}
	return intentID
}

func (l *Bravemoney) completeIntent(ctx context.Context, intentID string) {
	if intentID == "" || !l.store.RemoteEnabled() {
		return
	}
	doc := store.Document{store.FieldStatus: intentStatusComplete}
	if err := l.store.Remote().SetDocument(ctx, store.CollectionIntents, intentID, doc, true); err != nil {
		logrus.WithError(err).Warn("transfer intent completion failed")
	}
}

// RecoverPendingTransfers finishes interrupted transfers: for every pending
// intent it replays both legs idempotently — the debit first when the sender's
// ledger does not carry it yet, then the credit — and marks the intent
// complete. An intent is only completed once both legs are on their ledgers,
// so the sweep conserves the total balance across the two accounts. Returns
// the number of intents completed.
func (l *Bravemoney) RecoverPendingTransfers(ctx context.Context) (int, error) {
	if !l.store.RemoteEnabled() {
		return 0, nil
	}
	remote := l.store.Remote()

	pending, err := remote.QueryByField(ctx, store.CollectionIntents, store.FieldStatus, intentStatusPending, 0)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, intent := range pending {
		toAccount, _ := intent.Doc["to_account"].(string)
		fromAccount, _ := intent.Doc["from_account"].(string)
		debitTxnID, _ := intent.Doc["debit_txn_id"].(string)
		creditTxnID, _ := intent.Doc["credit_txn_id"].(string)
		note, _ := intent.Doc["note"].(string)
		rawAmount, _ := intent.Doc["amount"].(string)

		amount, err := decimal.NewFromString(rawAmount)
		if err != nil || toAccount == "" || fromAccount == "" || debitTxnID == "" || creditTxnID == "" {
			logrus.WithField("intent", intent.ID).Warn("skipping malformed transfer intent")
			continue
		}

		receiver, ok := l.ResolveOwner(ctx, toAccount)
		if !ok {
			logrus.WithField("intent", intent.ID).Warn("transfer intent target unresolvable")
			continue
		}
		sender, ok := l.ResolveOwner(ctx, fromAccount)
		if !ok {
			logrus.WithField("intent", intent.ID).Warn("transfer intent source unresolvable")
			continue
		}

		unlock := l.lockBoth(ctx, sender, receiver)
		if unlock == nil {
			continue
		}

		// The crash may have preceded the debit leg; it must land before the
		// credit or the sweep would credit money that was never moved.
		senderState := l.store.Get(ctx, sender)
		if !senderState.HasTransaction(debitTxnID) {
			if senderState.Balance.LessThan(amount) {
				logrus.WithField("intent", intent.ID).Warn("transfer intent source cannot cover debit, leaving pending")
				unlock()
				continue
			}
			debitTxn := model.Transaction{
				ID:        debitTxnID,
				Kind:      model.KindDebit,
				Amount:    amount,
				Note:      transferNote("Transfer to", toAccount, note),
				CreatedAt: time.Now(),
			}
			if _, _, failed := l.applyLeg(ctx, sender, debitTxn); failed {
				unlock()
				continue
			}
		}

		creditTxn := model.Transaction{
			ID:        creditTxnID,
			Kind:      model.KindCredit,
			Amount:    amount,
			Note:      transferNote("Transfer from", fromAccount, note),
			CreatedAt: time.Now(),
		}
		if _, _, failed := l.applyLeg(ctx, receiver, creditTxn); failed {
			unlock()
			continue
		}
		unlock()

		l.completeIntent(ctx, intent.ID)
		recovered++
	}
	return recovered, nil
}

func transferNote(direction, counterparty, note string) string {
	if note == "" {
		return fmt.Sprintf("%s %s", direction, counterparty)
	}
	return fmt.Sprintf("%s %s: %s", direction, counterparty, note)
}
