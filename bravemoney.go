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
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bravemoney/bravemoney/config"
	redlock "github.com/bravemoney/bravemoney/internal/lock"
	"github.com/bravemoney/bravemoney/store"
)

// ErrNoIdentity is returned when an operation runs with no identity resolved.
// It marks a caller-contract violation, not a business outcome.
var ErrNoIdentity = errors.New("no identity resolved")

// Bravemoney is the ledger engine: a pure-ish operation layer over whatever
// the dual-tier store currently holds for a resolved owner key.
type Bravemoney struct {
	store    *store.DualStore
	identity IdentityProvider
	locks    *redlock.Registry
}

func New(ds *store.DualStore, identity IdentityProvider, locks *redlock.Registry) *Bravemoney {
	return &Bravemoney{store: ds, identity: identity, locks: locks}
}

// NewFromConfig wires the engine from the loaded configuration: a redis-backed
// remote store when one is configured, the local cache tier, and a static
// identity provider seeded from config.
func NewFromConfig() (*Bravemoney, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	local, err := store.NewLocalCache(cnf)
	if err != nil {
		return nil, err
	}

	var remote store.DocumentStore
	locks := redlock.NewRegistry(nil)
	if cnf.RemoteEnabled() {
		client, err := store.NewRedisClient(cnf.Redis.Dns)
		if err != nil {
			// Misconfigured remote is tolerated: operate local-only.
			logrus.WithError(err).Warn("remote store unavailable, operating in local-only mode")
		} else {
			remote = store.NewRedisStore(client)
			locks = redlock.NewRegistry(client)
		}
	}

	return New(store.NewDualStore(remote, local), NewStaticIdentity(cnf.Identity.UID), locks), nil
}

// Store exposes the underlying dual-tier store.
func (l *Bravemoney) Store() *store.DualStore {
	return l.store
}

// resolveIdentity returns the identity the operation runs as: a context
// override when present, the provider's current uid otherwise.
func (l *Bravemoney) resolveIdentity(ctx context.Context) (string, error) {
	if uid, ok := identityFromContext(ctx); ok {
		return uid, nil
	}
	if uid, ok := l.identity.CurrentUID(); ok {
		return uid, nil
	}
	return "", ErrNoIdentity
}

// effectiveOwner resolves the owner key ledger operations address: the
// identity's linked account when one is set and still resolvable, the
// identity's own ledger otherwise. A link whose target cannot be resolved is
// removed.
func (l *Bravemoney) effectiveOwner(ctx context.Context, uid string) store.Owner {
	linked, ok, err := l.linkedAccount(ctx, uid)
	if err != nil {
		logrus.WithError(err).Warn("link lookup failed")
	} else if ok {
		owner, found := l.ResolveOwner(ctx, linked)
		if found {
			return owner
		}
		logrus.WithField("account", linked).Info("linked account no longer resolvable, unlinking")
		if err := l.store.Local().Remove(ctx, linkKey(uid)); err != nil {
			logrus.WithError(err).Warn("link removal failed")
		}
	}

	owner := store.Owner{UID: uid}
	if acct, ok, err := l.cachedAccountNumber(ctx, uid); err == nil && ok {
		owner.AccountNumber = acct
	}
	return owner
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0) && amount > 0
}

func toAmount(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount)
}
