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
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bravemoney/bravemoney/model"
	"github.com/bravemoney/bravemoney/store"
)

const (
	// maxReservationAttempts bounds remote reservation retries before the
	// allocator degrades to a local-only reservation.
	maxReservationAttempts = 8
	// maxLocalCandidateAttempts bounds random candidates tried against the
	// local reservation map before the deterministic fallback kicks in.
	maxLocalCandidateAttempts = 10

	accountKeyPrefix = "acct:"
	localAccountMap  = "acctmap"
)

var errCandidateTaken = errors.New("account number candidate already reserved")

func accountKey(uid string) string {
	return accountKeyPrefix + uid
}

// EnsureAccount returns the identity's account number, allocating and
// reserving one on first call. Provisioning is idempotent: once an identity
// has a cached account number every future call returns it immediately, after
// a best-effort re-sync of the mapping to the remote store.
func (l *Bravemoney) EnsureAccount(ctx context.Context) (string, error) {
	uid, err := l.resolveIdentity(ctx)
	if err != nil {
		return "", err
	}

	if acct, ok, err := l.cachedAccountNumber(ctx, uid); err != nil {
		return "", err
	} else if ok {
		l.resyncAccountMapping(ctx, uid, acct)
		return acct, nil
	}

	if l.store.RemoteEnabled() {
		if acct, err := l.reserveRemote(ctx, uid); err == nil {
			if err := l.rememberAccount(ctx, uid, acct); err != nil {
				return "", err
			}
			return acct, nil
		} else {
			logrus.WithError(err).Warn("remote account reservation failed, falling back to local allocation")
		}
	}

	acct, err := l.reserveLocal(ctx, uid)
	if err != nil {
		return "", err
	}
	return acct, nil
}

func (l *Bravemoney) cachedAccountNumber(ctx context.Context, uid string) (string, bool, error) {
	acct, ok, err := l.store.Local().Get(ctx, accountKey(uid))
	if err != nil {
		return "", false, errors.Wrap(err, "reading cached account number")
	}
	return acct, ok && acct != "", nil
}

// reserveRemote atomically reserves a candidate account number: within one
// transaction it verifies no mapping exists for the candidate and that the
// identity was not assigned an account concurrently, then writes the
// directory mapping and the wallet's account number together. Collisions and
// lost races retry with a fresh candidate, up to maxReservationAttempts.
func (l *Bravemoney) reserveRemote(ctx context.Context, uid string) (string, error) {
	remote := l.store.Remote()
	walletRef := store.DocRef{Collection: store.CollectionWallets, ID: uid}

	var assigned string
	attempt := func() error {
		candidate := model.GenerateAccountCandidate()
		dirRef := store.DocRef{Collection: store.CollectionDirectory, ID: candidate}

		err := remote.RunTransaction(ctx, []store.DocRef{dirRef, walletRef}, func(tx *store.Tx) error {
			wallet, _ := tx.Get(walletRef)
			if existing, ok := wallet[store.FieldAccountNumber].(string); ok && existing != "" {
				// Assigned concurrently; reservation is idempotent.
				assigned = existing
				return nil
			}
			if _, taken := tx.Get(dirRef); taken {
				return errCandidateTaken
			}

			tx.Set(dirRef, store.Document{store.FieldOwner: uid})
			next := store.Document{store.FieldAccountNumber: candidate}
			for k, v := range wallet {
				if k != store.FieldAccountNumber {
					next[k] = v
				}
			}
			tx.Set(walletRef, next)
			assigned = candidate
			return nil
		})

		switch {
		case err == nil:
			return nil
		case err == errCandidateTaken || err == store.ErrTxConflict:
			return err // retry with a fresh candidate
		default:
			return backoff.Permanent(err) // remote unreachable, stop retrying
		}
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), maxReservationAttempts-1)
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return assigned, nil
}

// reserveLocal picks an unused candidate against the local reservation map,
// with a deterministic fallback derived from the identity id when randomness
// keeps colliding. No remote uniqueness guarantees apply here.
func (l *Bravemoney) reserveLocal(ctx context.Context, uid string) (string, error) {
	reservations, err := l.localReservations(ctx)
	if err != nil {
		return "", err
	}

	// Another local identity may have already reserved for this uid.
	for acct, owner := range reservations {
		if owner == uid {
			if err := l.rememberAccount(ctx, uid, acct); err != nil {
				return "", err
			}
			return acct, nil
		}
	}

	candidate := ""
	for i := 0; i < maxLocalCandidateAttempts; i++ {
		c := model.GenerateAccountCandidate()
		if _, taken := reservations[c]; !taken {
			candidate = c
			break
		}
	}
	if candidate == "" {
		candidate = model.DeterministicAccountNumber(uid)
	}

	reservations[candidate] = uid
	if err := l.saveLocalReservations(ctx, reservations); err != nil {
		return "", err
	}
	if err := l.rememberAccount(ctx, uid, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

func (l *Bravemoney) rememberAccount(ctx context.Context, uid, acct string) error {
	if err := l.store.Local().Set(ctx, accountKey(uid), acct); err != nil {
		return errors.Wrap(err, "caching account number")
	}
	return nil
}

// resyncAccountMapping pushes the cached assignment back to the remote
// directory, best effort. It repairs mappings lost to an earlier offline
// allocation.
func (l *Bravemoney) resyncAccountMapping(ctx context.Context, uid, acct string) {
	if !l.store.RemoteEnabled() {
		return
	}
	remote := l.store.Remote()
	if err := remote.SetDocument(ctx, store.CollectionDirectory, acct, store.Document{store.FieldOwner: uid}, true); err != nil {
		logrus.WithError(err).Debug("account mapping re-sync failed")
		return
	}
	if err := remote.SetDocument(ctx, store.CollectionWallets, uid, store.Document{store.FieldAccountNumber: acct}, true); err != nil {
		logrus.WithError(err).Debug("wallet account number re-sync failed")
	}
}

func (l *Bravemoney) localReservations(ctx context.Context) (map[string]string, error) {
	raw, ok, err := l.store.Local().Get(ctx, localAccountMap)
	if err != nil {
		return nil, errors.Wrap(err, "reading local reservations")
	}
	reservations := make(map[string]string)
	if ok {
		if err := json.Unmarshal([]byte(raw), &reservations); err != nil {
			logrus.WithError(err).Warn("local reservation map corrupted, resetting")
			reservations = make(map[string]string)
		}
	}
	return reservations, nil
}

func (l *Bravemoney) saveLocalReservations(ctx context.Context, reservations map[string]string) error {
	raw, err := json.Marshal(reservations)
	if err != nil {
		return errors.Wrap(err, "encoding local reservations")
	}
	return errors.Wrap(l.store.Local().Set(ctx, localAccountMap, string(raw)), "writing local reservations")
}
