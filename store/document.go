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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Document is a JSON-shaped document as held by the remote store.
type Document map[string]interface{}

// DocRef addresses a document by collection and id.
type DocRef struct {
	Collection string
	ID         string
}

// QueryResult pairs a matched document with its id.
type QueryResult struct {
	ID  string
	Doc Document
}

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrTxConflict is returned when an atomic transaction lost a race and should
// be retried by the caller.
var ErrTxConflict = errors.New("document transaction conflict")

// DocumentStore is the contract the core consumes from the hosted document
// database: get-by-path, set-with-merge, query-by-field-equality, and atomic
// multi-document read-modify-write transactions.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	SetDocument(ctx context.Context, collection, id string, doc Document, merge bool) error
	QueryByField(ctx context.Context, collection, field string, value interface{}, limit int) ([]QueryResult, error)
	RunTransaction(ctx context.Context, refs []DocRef, fn func(tx *Tx) error) error
}

// Tx is the view handed to a transaction callback: the watched documents as
// read at transaction start, plus staged writes applied atomically on commit.
type Tx struct {
	docs   map[DocRef]Document
	writes []stagedWrite
}

type stagedWrite struct {
	ref DocRef
	doc Document
}

// Get returns the watched document for ref, or false if it does not exist.
func (t *Tx) Get(ref DocRef) (Document, bool) {
	doc, ok := t.docs[ref]
	return doc, ok
}

// Set stages a full-document write to be committed with the transaction.
func (t *Tx) Set(ref DocRef, doc Document) {
	t.writes = append(t.writes, stagedWrite{ref: ref, doc: doc})
}

// RedisStore implements DocumentStore on redis: documents are JSON values
// keyed by collection and id, with a set per collection tracking member ids so
// field-equality queries can scan when no secondary index exists.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisClient builds a redis client from a DNS string, accepting both
// redis:// URLs and bare host:port forms.
func NewRedisClient(dns string) (redis.UniversalClient, error) {
	if dns == "" {
		return nil, errors.New("redis dns is empty")
	}
	if !strings.Contains(dns, "://") {
		dns = "redis://" + dns
	}
	opts, err := redis.ParseURL(dns)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis dns")
	}
	return redis.NewClient(opts), nil
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func docKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func collectionKey(collection string) string {
	return fmt.Sprintf("col:%s", collection)
}

func (r *RedisStore) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	raw, err := r.client.Get(ctx, docKey(collection, id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s/%s", collection, id)
	}
	return decodeDocument([]byte(raw))
}

func (r *RedisStore) SetDocument(ctx context.Context, collection, id string, doc Document, merge bool) error {
	if merge {
		existing, err := r.GetDocument(ctx, collection, id)
		if err != nil && err != ErrNotFound {
			return err
		}
		doc = mergeDocuments(existing, doc)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s/%s", collection, id)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), raw, 0)
		pipe.SAdd(ctx, collectionKey(collection), id)
		return nil
	})
	return errors.Wrapf(err, "writing %s/%s", collection, id)
}

// QueryByField scans the collection for documents whose field equals value.
// This is the fallback path used when the backend's secondary index is
// unavailable; it is linear in the collection size.
func (r *RedisStore) QueryByField(ctx context.Context, collection, field string, value interface{}, limit int) ([]QueryResult, error) {
	ids, err := r.client.SMembers(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "scanning collection %s", collection)
	}
	var results []QueryResult
	for _, id := range ids {
		doc, err := r.GetDocument(ctx, collection, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if fieldEquals(doc[field], value) {
			results = append(results, QueryResult{ID: id, Doc: doc})
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// RunTransaction runs fn inside a WATCH-guarded transaction over refs. The
// staged writes commit only if none of the watched documents changed since
// they were read; a lost race surfaces as ErrTxConflict.
func (r *RedisStore) RunTransaction(ctx context.Context, refs []DocRef, fn func(tx *Tx) error) error {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, docKey(ref.Collection, ref.ID))
	}

	err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &Tx{docs: make(map[DocRef]Document, len(refs))}
		for _, ref := range refs {
			raw, err := rtx.Get(ctx, docKey(ref.Collection, ref.ID)).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return err
			}
			doc, err := decodeDocument([]byte(raw))
			if err != nil {
				return err
			}
			tx.docs[ref] = doc
		}

		if err := fn(tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, write := range tx.writes {
				raw, err := json.Marshal(write.doc)
				if err != nil {
					return err
				}
				pipe.Set(ctx, docKey(write.ref.Collection, write.ref.ID), raw, 0)
				pipe.SAdd(ctx, collectionKey(write.ref.Collection), write.ref.ID)
			}
			return nil
		})
		return err
	}, keys...)

	if err == redis.TxFailedErr {
		return ErrTxConflict
	}
	return err
}

func decodeDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	return doc, nil
}

func mergeDocuments(base, overlay Document) Document {
	merged := make(Document, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func fieldEquals(have, want interface{}) bool {
	if have == nil {
		return false
	}
	return fmt.Sprintf("%v", have) == fmt.Sprintf("%v", want)
}
