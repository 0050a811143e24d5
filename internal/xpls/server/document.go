// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"sync"

	"go.lsp.dev/protocol"
)

// Document is one open editor document: its sync version and full text.
// Version and Text are always observed together under the store's lock, so
// a snapshot taken before validation can be compared against the store at
// publish time.
type Document struct {
	Version int32
	Text    []byte
}

// DocumentStore maps open document URIs to their current version and text.
// One mutex guards the whole map; holders take it only for the duration of a
// single insertion, replacement, removal, or snapshot, never across await
// points or calls into the config or schema caches.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[protocol.DocumentURI]Document
}

// NewDocumentStore constructs an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[protocol.DocumentURI]Document)}
}

// Set inserts or wholesale-replaces the entry for uri. Full text sync means
// every didOpen/didChange carries the complete document.
func (s *DocumentStore) Set(uri protocol.DocumentURI, version int32, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = Document{Version: version, Text: []byte(text)}
}

// Get returns a snapshot of uri's entry. Version and text come from one
// locked observation.
func (s *DocumentStore) Get(uri protocol.DocumentURI) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	return d, ok
}

// Remove deletes uri's entry. A missing entry at publish time makes the
// version guard treat any in-flight validation for uri as stale.
func (s *DocumentStore) Remove(uri protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// MatchesVersion reports whether uri is present with exactly version. This
// is the publish-time guard: a snapshot whose version no longer matches is
// discarded instead of published.
func (s *DocumentStore) MatchesVersion(uri protocol.DocumentURI, version int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	return ok && d.Version == version
}

// URIs returns the set of currently open document URIs, used when a config
// change forces re-validation of everything open.
func (s *DocumentStore) URIs() []protocol.DocumentURI {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]protocol.DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}
