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
)

// IdentityProvider supplies the current identity id, or none, plus a change
// notification subscription. The core reads it synchronously when resolving
// the effective owner of an operation.
type IdentityProvider interface {
	CurrentUID() (string, bool)
	Subscribe(fn func(uid string, ok bool)) (cancel func())
}

// StaticIdentity is an IdentityProvider holding a single settable uid. It
// stands in for an auth backend; swapping the uid notifies subscribers the
// way a sign-in/sign-out would.
type StaticIdentity struct {
	mu     sync.Mutex
	uid    string
	nextID int
	subs   map[int]func(uid string, ok bool)
}

func NewStaticIdentity(uid string) *StaticIdentity {
	return &StaticIdentity{uid: uid, subs: make(map[int]func(string, bool))}
}

func (s *StaticIdentity) CurrentUID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uid, s.uid != ""
}

func (s *StaticIdentity) Subscribe(fn func(uid string, ok bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SetUID swaps the current identity and notifies subscribers.
func (s *StaticIdentity) SetUID(uid string) {
	s.mu.Lock()
	s.uid = uid
	subs := make([]func(string, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(uid, uid != "")
	}
}

type identityCtxKey struct{}

// WithIdentity overrides the identity for operations carried out with ctx.
// The API layer uses it to scope a request to the caller's uid.
func WithIdentity(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, uid)
}

func identityFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(identityCtxKey{}).(string)
	return uid, ok && uid != ""
}
