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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravemoney/bravemoney/model"
	"github.com/bravemoney/bravemoney/store"
)

func TestEnsureAccountIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	assert.True(t, model.IsValidAccountNumber(first))

	second, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureAccountWritesReservation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	acct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)

	remote := engine.Store().Remote()

	mapping, err := remote.GetDocument(ctx, store.CollectionDirectory, acct)
	require.NoError(t, err)
	assert.Equal(t, "u1", mapping[store.FieldOwner])

	wallet, err := remote.GetDocument(ctx, store.CollectionWallets, "u1")
	require.NoError(t, err)
	assert.Equal(t, acct, wallet[store.FieldAccountNumber])
}

func TestEnsureAccountDistinctIdentities(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.EnsureAccount(WithIdentity(ctx, "u1"))
	require.NoError(t, err)
	second, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEnsureAccountConcurrentAssignmentWins(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Another device already reserved for u1; the allocator must return the
	// existing assignment instead of minting a new one.
	require.NoError(t, engine.Store().Remote().SetDocument(ctx, store.CollectionWallets, "u1",
		store.Document{store.FieldAccountNumber: "BM7777771234"}, false))

	acct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BM7777771234", acct)
}

func TestEnsureAccountLocalFallback(t *testing.T) {
	engine, mr := newTestEngine(t)
	ctx := context.Background()
	mr.Close()

	acct, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	assert.True(t, model.IsValidAccountNumber(acct))

	// Still idempotent offline.
	again, err := engine.EnsureAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct, again)
}

func TestEnsureAccountLocalOnly(t *testing.T) {
	engine := newLocalEngine()
	ctx := context.Background()

	first, err := engine.EnsureAccount(WithIdentity(ctx, "u1"))
	require.NoError(t, err)
	second, err := engine.EnsureAccount(WithIdentity(ctx, "u2"))
	require.NoError(t, err)

	assert.True(t, model.IsValidAccountNumber(first))
	assert.True(t, model.IsValidAccountNumber(second))
	assert.NotEqual(t, first, second)

	// The local reservation map records both assignments.
	owner, ok := engine.ResolveOwner(ctx, first)
	assert.True(t, ok)
	assert.Equal(t, first, owner.AccountNumber)
}
