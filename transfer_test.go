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
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravemoney/bravemoney/internal/apierror"
	redlock "github.com/bravemoney/bravemoney/internal/lock"
	"github.com/bravemoney/bravemoney/model"
	"github.com/bravemoney/bravemoney/store"
)

func TestTransfer(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)

	receiverCtx := WithIdentity(ctx, "u2")
	receiverAcct, err := engine.EnsureAccount(receiverCtx)
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, receiverAcct, 40, "rent")
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Contains(t, result.Message, "40.00")
	assert.Contains(t, result.Message, receiverAcct)

	// Sender: 100 -> 60 with one new debit noting the receiver.
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(60)))
	require.Len(t, result.State.Transactions, 2)
	debit := result.State.Transactions[0]
	assert.Equal(t, model.KindDebit, debit.Kind)
	assert.True(t, debit.Amount.Equal(decimal.NewFromInt(40)))
	assert.Contains(t, debit.Note, receiverAcct)

	// Receiver: 0 -> 40 with one new credit noting the sender.
	senderAcct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	received, err := engine.GetBalance(receiverCtx)
	require.NoError(t, err)
	assert.True(t, received.State.Balance.Equal(decimal.NewFromInt(40)))
	require.Len(t, received.State.Transactions, 1)
	credit := received.State.Transactions[0]
	assert.Equal(t, model.KindCredit, credit.Kind)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(40)))
	assert.Contains(t, credit.Note, senderAcct)
}

func TestTransferToOwnAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	own, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, own, 10, "loop")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrSelfTransfer, result.Code)
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(100)))
}

func TestTransferInvalidAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Transfer(ctx, "XYZ123", 10, "bad target")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrInvalidAccount, result.Code)
}

func TestTransferUnknownAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, "BM9999990000", 10, "ghost")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrAccountNotFound, result.Code)
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(100)))
}

func TestTransferInsufficientBalance(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 20, "seed")
	require.NoError(t, err)
	receiverAcct, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, receiverAcct, 50, "too much")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrInsufficientBalance, result.Code)
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(20)))
}

func TestTransferInvalidAmount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	receiverAcct, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, receiverAcct, -1, "negative")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrInvalidAmount, result.Code)
}

func TestTransferWritesCompletedIntent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	receiverAcct, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	result, err := engine.Transfer(ctx, receiverAcct, 25, "tracked")
	require.NoError(t, err)
	require.True(t, result.Ok)

	remote := engine.Store().Remote()
	pending, err := remote.QueryByField(ctx, store.CollectionIntents, store.FieldStatus, "pending", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	complete, err := remote.QueryByField(ctx, store.CollectionIntents, store.FieldStatus, "complete", 0)
	require.NoError(t, err)
	assert.Len(t, complete, 1)
}

func TestRecoverReplaysInterruptedTransfer(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	senderAcct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)

	receiverCtx := WithIdentity(ctx, "u2")
	receiverAcct, err := engine.EnsureAccount(receiverCtx)
	require.NoError(t, err)

	// A transfer that died right after recording its intent: neither leg is
	// on a ledger yet. The sweep must replay both, never just the credit.
	debitTxnID := model.GenerateUUIDWithSuffix("txn")
	creditTxnID := model.GenerateUUIDWithSuffix("txn")
	intent := store.Document{
		"from_account":    senderAcct,
		"to_account":      receiverAcct,
		"amount":          "40",
		"note":            "interrupted",
		"debit_txn_id":    debitTxnID,
		"credit_txn_id":   creditTxnID,
		store.FieldStatus: intentStatusPending,
	}
	require.NoError(t, engine.Store().Remote().SetDocument(ctx, store.CollectionIntents, "itt_test", intent, false))

	recovered, err := engine.RecoverPendingTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	sender, err := engine.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, sender.State.Balance.Equal(decimal.NewFromInt(60)))
	require.Len(t, sender.State.Transactions, 2)
	assert.Equal(t, debitTxnID, sender.State.Transactions[0].ID)

	received, err := engine.GetBalance(receiverCtx)
	require.NoError(t, err)
	assert.True(t, received.State.Balance.Equal(decimal.NewFromInt(40)))
	require.Len(t, received.State.Transactions, 1)
	assert.Equal(t, creditTxnID, received.State.Transactions[0].ID)

	// The two ledgers together still hold exactly the seeded amount.
	total := sender.State.Balance.Add(received.State.Balance)
	assert.True(t, total.Equal(decimal.NewFromInt(100)))

	// The sweep is idempotent: nothing left to recover, no double leg.
	recovered, err = engine.RecoverPendingTransfers(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	sender, err = engine.GetBalance(ctx)
	require.NoError(t, err)
	received, err = engine.GetBalance(receiverCtx)
	require.NoError(t, err)
	assert.True(t, sender.State.Balance.Add(received.State.Balance).Equal(decimal.NewFromInt(100)))
}

func TestRecoverSkipsUnresolvableSender(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	receiverCtx := WithIdentity(ctx, "u2")
	receiverAcct, err := engine.EnsureAccount(receiverCtx)
	require.NoError(t, err)

	intent := store.Document{
		"from_account":    "BM0000009999",
		"to_account":      receiverAcct,
		"amount":          "40",
		"note":            "orphaned",
		"debit_txn_id":    model.GenerateUUIDWithSuffix("txn"),
		"credit_txn_id":   model.GenerateUUIDWithSuffix("txn"),
		store.FieldStatus: intentStatusPending,
	}
	require.NoError(t, engine.Store().Remote().SetDocument(ctx, store.CollectionIntents, "itt_orphan", intent, false))

	recovered, err := engine.RecoverPendingTransfers(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	// No credit without a debit to match it.
	received, err := engine.GetBalance(receiverCtx)
	require.NoError(t, err)
	assert.True(t, received.State.Balance.IsZero())

	pending, err := engine.Store().Remote().QueryByField(ctx, store.CollectionIntents, store.FieldStatus, intentStatusPending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRecoverLeavesUncoverableDebitPending(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 10, "seed")
	require.NoError(t, err)
	senderAcct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	receiverCtx := WithIdentity(ctx, "u2")
	receiverAcct, err := engine.EnsureAccount(receiverCtx)
	require.NoError(t, err)

	// The recorded debit never landed and the balance can no longer cover it.
	intent := store.Document{
		"from_account":    senderAcct,
		"to_account":      receiverAcct,
		"amount":          "40",
		"note":            "stale",
		"debit_txn_id":    model.GenerateUUIDWithSuffix("txn"),
		"credit_txn_id":   model.GenerateUUIDWithSuffix("txn"),
		store.FieldStatus: intentStatusPending,
	}
	require.NoError(t, engine.Store().Remote().SetDocument(ctx, store.CollectionIntents, "itt_stale", intent, false))

	recovered, err := engine.RecoverPendingTransfers(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	sender, err := engine.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, sender.State.Balance.Equal(decimal.NewFromInt(10)))
	received, err := engine.GetBalance(receiverCtx)
	require.NoError(t, err)
	assert.True(t, received.State.Balance.IsZero())
}

func TestTransferPartialFailureThenRecovered(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	remote := &faultyRemote{DocumentStore: store.NewRedisStore(client)}
	local := &faultyLocal{LocalCache: store.NewMemoryCache()}
	engine := New(store.NewDualStore(remote, local), NewStaticIdentity("u1"), redlock.NewRegistry(client))
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	receiverAcct, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	// Receiver-side writes fail on both tiers once the debit has committed.
	remote.blockWrites("u2")
	local.blockWrites("ledger:acct:" + receiverAcct)

	result, err := engine.Transfer(ctx, receiverAcct, 40, "rent")
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, apierror.ErrPartialFailure, result.Code)

	// The debit stays persisted and the intent stays pending for the sweep.
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(60)))
	pending, err := remote.QueryByField(ctx, store.CollectionIntents, store.FieldStatus, intentStatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	remote.allowWrites()
	local.allowWrites()

	recovered, err := engine.RecoverPendingTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// The sender is not debited twice and the total is conserved.
	sender, err := engine.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, sender.State.Balance.Equal(decimal.NewFromInt(60)))
	received, err := engine.GetBalance(WithIdentity(ctx, "u2"))
	require.NoError(t, err)
	assert.True(t, received.State.Balance.Equal(decimal.NewFromInt(40)))
	assert.True(t, sender.State.Balance.Add(received.State.Balance).Equal(decimal.NewFromInt(100)))
}

func TestTransferThroughLinkNotesLinkedAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Credit(ctx, 100, "seed")
	require.NoError(t, err)
	u1Acct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	u3Ctx := WithIdentity(ctx, "u3")
	u3Acct, err := engine.EnsureAccount(u3Ctx)
	require.NoError(t, err)

	// u2 operates through u1's ledger.
	u2 := WithIdentity(ctx, "u2")
	linked, err := engine.Link(u2, u1Acct)
	require.NoError(t, err)
	require.True(t, linked.Ok)

	result, err := engine.Transfer(u2, u3Acct, 40, "shared pot")
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.True(t, result.State.Balance.Equal(decimal.NewFromInt(60)))

	// The credit names the ledger the money actually left, not u2's own
	// unused account.
	received, err := engine.GetBalance(u3Ctx)
	require.NoError(t, err)
	require.Len(t, received.State.Transactions, 1)
	assert.Contains(t, received.State.Transactions[0].Note, u1Acct)

	// u1's ledger carries the debit.
	own, err := engine.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, own.State.Balance.Equal(decimal.NewFromInt(60)))
}

// faultyRemote wraps a DocumentStore and rejects transactions touching one
// document id while tripped, standing in for a partition on a single wallet.
type faultyRemote struct {
	store.DocumentStore
	mu      sync.Mutex
	blockID string
}

func (f *faultyRemote) blockWrites(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockID = id
}

func (f *faultyRemote) allowWrites() {
	f.blockWrites("")
}

func (f *faultyRemote) RunTransaction(ctx context.Context, refs []store.DocRef, fn func(*store.Tx) error) error {
	f.mu.Lock()
	blocked := f.blockID
	f.mu.Unlock()
	if blocked != "" {
		for _, ref := range refs {
			if ref.ID == blocked {
				return errors.New("write rejected")
			}
		}
	}
	return f.DocumentStore.RunTransaction(ctx, refs, fn)
}

// faultyLocal wraps a LocalCache and rejects writes to one key while tripped.
type faultyLocal struct {
	store.LocalCache
	mu       sync.Mutex
	blockKey string
}

func (f *faultyLocal) blockWrites(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockKey = key
}

func (f *faultyLocal) allowWrites() {
	f.blockWrites("")
}

func (f *faultyLocal) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	blocked := f.blockKey
	f.mu.Unlock()
	if blocked != "" && key == blocked {
		return errors.New("write rejected")
	}
	return f.LocalCache.Set(ctx, key, value)
}
