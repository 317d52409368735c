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

const linkKeyPrefix = "link:"

func linkKey(uid string) string {
	return linkKeyPrefix + uid
}

// ResolveOwner maps an account number to the owner key its ledger lives
// under. It tries the direct directory mapping, then a field-equality scan of
// wallet documents (for when the directory entry is missing), then the local
// reservation map. The returned Owner carries a uid only when the account was
// resolved remotely.
func (l *Bravemoney) ResolveOwner(ctx context.Context, accountNumber string) (store.Owner, bool) {
	acct := model.CanonicalAccountNumber(accountNumber)

	if l.store.RemoteEnabled() {
		remote := l.store.Remote()

		doc, err := remote.GetDocument(ctx, store.CollectionDirectory, acct)
		if err == nil {
			if uid, ok := doc[store.FieldOwner].(string); ok && uid != "" {
				return store.Owner{UID: uid, AccountNumber: acct}, true
			}
		} else if err != store.ErrNotFound {
			logrus.WithError(err).Warn("directory lookup failed, trying local map")
			return l.resolveOwnerLocal(ctx, acct)
		}

		// No directory entry: fall back to scanning wallet documents for a
		// matching account number field.
		results, err := remote.QueryByField(ctx, store.CollectionWallets, store.FieldAccountNumber, acct, 1)
		if err != nil {
			logrus.WithError(err).Warn("wallet scan failed, trying local map")
			return l.resolveOwnerLocal(ctx, acct)
		}
		if len(results) > 0 {
			return store.Owner{UID: results[0].ID, AccountNumber: acct}, true
		}
	}

	return l.resolveOwnerLocal(ctx, acct)
}

func (l *Bravemoney) resolveOwnerLocal(ctx context.Context, acct string) (store.Owner, bool) {
	reservations, err := l.localReservations(ctx)
	if err != nil {
		logrus.WithError(err).Warn("local reservation lookup failed")
		return store.Owner{}, false
	}
	if _, ok := reservations[acct]; ok {
		return store.Owner{AccountNumber: acct}, true
	}
	return store.Owner{}, false
}

// Link designates another account number as this identity's effective ledger
// owner: all subsequent reads and writes target the linked account's ledger.
// The target owner's consent is not required. At most one link is active per
// identity; linking again replaces the previous relation.
func (l *Bravemoney) Link(ctx context.Context, accountNumber string) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	acct := model.CanonicalAccountNumber(accountNumber)
	if !model.IsValidAccountNumber(acct) {
		state := l.store.Get(ctx, l.effectiveOwner(ctx, uid))
		return failureResult(apierror.ErrInvalidAccount, fmt.Sprintf("%s is not a valid account number", accountNumber), state), nil
	}

	owner, ok := l.ResolveOwner(ctx, acct)
	if !ok {
		state := l.store.Get(ctx, l.effectiveOwner(ctx, uid))
		return failureResult(apierror.ErrAccountNotFound, fmt.Sprintf("no account found for %s", acct), state), nil
	}

	if err := l.store.Local().Set(ctx, linkKey(uid), acct); err != nil {
		return nil, err
	}

	state := l.store.Get(ctx, owner)
	result := successResult(fmt.Sprintf("Linked account %s", acct), state, false)
	result.AccountNumber = acct
	return result, nil
}

// Unlink clears the identity's linked-account relation, pointing operations
// back at its own ledger.
func (l *Bravemoney) Unlink(ctx context.Context) (*Result, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.store.Local().Remove(ctx, linkKey(uid)); err != nil {
		return nil, err
	}
	state := l.store.Get(ctx, l.effectiveOwner(ctx, uid))
	return successResult("Unlinked account", state, false), nil
}

func (l *Bravemoney) linkedAccount(ctx context.Context, uid string) (string, bool, error) {
	acct, ok, err := l.store.Local().Get(ctx, linkKey(uid))
	if err != nil || !ok || acct == "" {
		return "", false, err
	}
	return acct, true, nil
}
