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

package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bravemoney/bravemoney/model"
)

const (
	CollectionWallets    = "wallets"
	CollectionWalletMeta = "wallet_meta" // legacy per-user sub-document location
	CollectionDirectory  = "directory"
	CollectionIntents    = "transfer_intents"

	FieldLedger        = "ledger"
	FieldAccountNumber = "account_number"
	FieldOwner         = "owner"
	FieldStatus        = "status"
)

// ErrVersionConflict is returned by Set when the remote document's ledger
// version moved since the state was read. The caller re-reads and retries.
var ErrVersionConflict = errors.New("ledger version conflict")

// Owner is the resolved owner key a ledger is addressed by: the remote
// identity uid when one is resolved, plus the account number when known. With
// no uid the store operates against the local cache alone.
type Owner struct {
	UID           string
	AccountNumber string
}

// CacheKey is the composite local key for this owner, preferring the account
// number so linked and offline ledgers share an address.
func (o Owner) CacheKey() string {
	if o.AccountNumber != "" {
		return "ledger:acct:" + o.AccountNumber
	}
	return "ledger:uid:" + o.UID
}

// DualStore presents a single get/set contract over a remote authoritative
// document store and a local cache, degrading to the cache on any remote
// failure. The remote may be nil (local-only operation); both modes run
// through the same code path.
type DualStore struct {
	remote DocumentStore
	local  LocalCache
}

func NewDualStore(remote DocumentStore, local LocalCache) *DualStore {
	return &DualStore{remote: remote, local: local}
}

// Remote exposes the remote document store, or nil when operating local-only.
func (s *DualStore) Remote() DocumentStore {
	return s.remote
}

// Local exposes the local cache tier.
func (s *DualStore) Local() LocalCache {
	return s.local
}

// RemoteEnabled reports whether a remote store is configured.
func (s *DualStore) RemoteEnabled() bool {
	return s.remote != nil
}

// Get returns the normalized ledger state for the owner. It prefers the
// remote document, migrating from the legacy location or provisioning a
// default on first read, and falls back to the local cache on any remote
// error. Get never fails; worst case it returns the default state.
func (s *DualStore) Get(ctx context.Context, owner Owner) model.LedgerState {
	if s.remote != nil && owner.UID != "" {
		if state, ok := s.getRemote(ctx, owner); ok {
			return state
		}
	}
	return s.getLocal(ctx, owner)
}

func (s *DualStore) getRemote(ctx context.Context, owner Owner) (model.LedgerState, bool) {
	doc, err := s.remote.GetDocument(ctx, CollectionWallets, owner.UID)
	if err != nil && err != ErrNotFound {
		logrus.WithError(err).Warn("remote wallet fetch failed, falling back to local cache")
		return model.LedgerState{}, false
	}

	if raw, ok := doc[FieldLedger]; ok {
		state := model.Normalize(raw)
		s.refreshLocal(ctx, owner, state)
		return state, true
	}

	// Wallet document missing its ledger: check the legacy per-user location
	// and migrate it into the modern document.
	meta, err := s.remote.GetDocument(ctx, CollectionWalletMeta, owner.UID)
	if err != nil && err != ErrNotFound {
		logrus.WithError(err).Warn("legacy ledger fetch failed, falling back to local cache")
		return model.LedgerState{}, false
	}
	if raw, ok := meta[FieldLedger]; ok {
		state := model.Normalize(raw)
		if err := s.remote.SetDocument(ctx, CollectionWallets, owner.UID, Document{FieldLedger: state.ToDocument()}, true); err != nil {
			logrus.WithError(err).Warn("legacy ledger migration write failed")
		}
		s.refreshLocal(ctx, owner, state)
		return state, true
	}

	// Neither location holds a ledger: provision the default remotely.
	state := model.DefaultState()
	if err := s.remote.SetDocument(ctx, CollectionWallets, owner.UID, Document{FieldLedger: state.ToDocument()}, true); err != nil {
		logrus.WithError(err).Warn("default ledger provisioning failed, falling back to local cache")
		return model.LedgerState{}, false
	}
	s.refreshLocal(ctx, owner, state)
	return state, true
}

func (s *DualStore) getLocal(ctx context.Context, owner Owner) model.LedgerState {
	raw, ok, err := s.local.Get(ctx, owner.CacheKey())
	if err != nil {
		logrus.WithError(err).Warn("local cache read failed")
		return model.DefaultState()
	}
	if !ok {
		return model.DefaultState()
	}
	return model.NormalizeJSON([]byte(raw))
}

// Set persists the state for the owner. The remote write is compare-and-set
// on the ledger version; a lost race surfaces as ErrVersionConflict so the
// caller can re-read and retry. Any other remote failure degrades silently to
// the local cache, reported through the persistedToCloud flag.
func (s *DualStore) Set(ctx context.Context, owner Owner, state model.LedgerState) (bool, error) {
	if s.remote != nil && owner.UID != "" {
		err := s.setRemote(ctx, owner, state)
		if err == nil {
			s.refreshLocal(ctx, owner, state)
			return true, nil
		}
		if err == ErrVersionConflict {
			return false, err
		}
		logrus.WithError(err).Warn("remote wallet write failed, writing to local cache")
	}

	if err := s.writeLocal(ctx, owner, state); err != nil {
		return false, err
	}
	return false, nil
}

func (s *DualStore) setRemote(ctx context.Context, owner Owner, state model.LedgerState) error {
	ref := DocRef{Collection: CollectionWallets, ID: owner.UID}
	err := s.remote.RunTransaction(ctx, []DocRef{ref}, func(tx *Tx) error {
		doc, ok := tx.Get(ref)
		var storedVersion int64
		if ok {
			if raw, has := doc[FieldLedger]; has {
				storedVersion = model.Normalize(raw).Version
			}
		}
		if storedVersion != state.Version-1 {
			return ErrVersionConflict
		}
		tx.Set(ref, mergeDocuments(doc, Document{FieldLedger: state.ToDocument()}))
		return nil
	})
	if err == ErrTxConflict {
		return ErrVersionConflict
	}
	return err
}

func (s *DualStore) refreshLocal(ctx context.Context, owner Owner, state model.LedgerState) {
	if err := s.writeLocal(ctx, owner, state); err != nil {
		logrus.WithError(err).Warn("local cache refresh failed")
	}
}

func (s *DualStore) writeLocal(ctx context.Context, owner Owner, state model.LedgerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "encoding ledger state")
	}
	return s.local.Set(ctx, owner.CacheKey(), string(raw))
}
