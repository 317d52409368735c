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

	"github.com/sirupsen/logrus"

	"github.com/bravemoney/bravemoney/internal/apierror"
	"github.com/bravemoney/bravemoney/model"
	"github.com/bravemoney/bravemoney/store"
)

// GetBalance returns the current normalized ledger state for the resolved
// effective owner. It has no side effects beyond the store's cache refresh.
func (l *Bravemoney) GetBalance(ctx context.Context) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}
	owner := l.effectiveOwner(ctx, uid)
	state := l.store.Get(ctx, owner)
	result := successResult("", state, false)
	result.AccountNumber = owner.AccountNumber
	return result, nil
}

// Credit adds amount to the effective owner's balance and prepends a credit
// transaction. A non-finite or non-positive amount is a no-op that reports
// the current state.
func (l *Bravemoney) Credit(ctx context.Context, amount float64, note string) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if !validAmount(amount) {
		owner := l.effectiveOwner(ctx, uid)
		return failureResult(apierror.ErrInvalidAmount, "amount must be a positive number", l.store.Get(ctx, owner)), nil
	}

	if _, err := l.EnsureAccount(ctx); err != nil {
		return nil, err
	}
	owner := l.effectiveOwner(ctx, uid)
	value := toAmount(amount)

	return l.mutate(ctx, owner, func(state model.LedgerState) (model.LedgerState, *Result) {
		next := state.Prepend(model.NewTransaction(model.KindCredit, value, note))
		return next, nil
	}, fmt.Sprintf("Credited %s", value.StringFixed(2)))
}

// Debit subtracts amount from the effective owner's balance and prepends a
// debit transaction. It fails with INVALID_AMOUNT for non-finite or
// non-positive amounts and INSUFFICIENT_BALANCE when the balance cannot cover
// the amount; a debit never produces a negative balance.
func (l *Bravemoney) Debit(ctx context.Context, amount float64, note string) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if !validAmount(amount) {
		owner := l.effectiveOwner(ctx, uid)
		return failureResult(apierror.ErrInvalidAmount, "amount must be a positive number", l.store.Get(ctx, owner)), nil
	}

	if _, err := l.EnsureAccount(ctx); err != nil {
		return nil, err
	}
	owner := l.effectiveOwner(ctx, uid)
	value := toAmount(amount)

	return l.mutate(ctx, owner, func(state model.LedgerState) (model.LedgerState, *Result) {
		if state.Balance.LessThan(value) {
			return state, failureResult(apierror.ErrInsufficientBalance,
				fmt.Sprintf("balance %s cannot cover %s", state.Balance.StringFixed(2), value.StringFixed(2)), state)
		}
		next := state.Prepend(model.NewTransaction(model.KindDebit, value, note))
		return next, nil
	}, fmt.Sprintf("Debited %s", value.StringFixed(2)))
}

// mutate runs a locked read-modify-write cycle against the owner's ledger.
// apply either returns the next state or a business failure carrying the
// unchanged state. A version conflict on the remote write triggers one
// re-read and re-apply; storage failure of both tiers reports
// STORAGE_UNAVAILABLE rather than an error.
func (l *Bravemoney) mutate(ctx context.Context, owner store.Owner, apply func(model.LedgerState) (model.LedgerState, *Result), message string) (*Result, error) {
	locker := l.locks.ForOwner(owner.CacheKey())
	if err := locker.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.WithError(err).Warn("owner unlock failed")
		}
	}()

	for attempt := 0; attempt < 2; attempt++ {
		state := l.store.Get(ctx, owner)
		next, failure := apply(state)
		if failure != nil {
			return failure, nil
		}
		next.Version = state.Version + 1

		persisted, err := l.store.Set(ctx, owner, next)
		if err == store.ErrVersionConflict {
			logrus.WithField("owner", owner.CacheKey()).Info("ledger version conflict, retrying")
			continue
		}
		if err != nil {
			return failureResult(apierror.ErrStorageUnavailable, "could not persist ledger state", state), nil
		}
		result := successResult(message, next, persisted)
		result.AccountNumber = owner.AccountNumber
		return result, nil
	}

	state := l.store.Get(ctx, owner)
	return failureResult(apierror.ErrStorageUnavailable, "could not persist ledger state after retry", state), nil
}
