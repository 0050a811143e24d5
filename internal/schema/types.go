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

// Package schema compiles and caches JSON Schema documents, fetching remote
// ones over HTTP with an on-disk TTL cache, and walks a raw schema's
// annotations (title/description) to back hover content.
package schema

import (
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SourceKind distinguishes the two ways a schema can be addressed.
type SourceKind int

const (
	// SourceURL is an absolute HTTP(S) URL.
	SourceURL SourceKind = iota
	// SourceFile is an absolute filesystem path.
	SourceFile
)

// Source is the tagged-variant schema source: either a URL or a file path.
// Two Sources compare equal only if both Kind and Value compare equal; file
// paths are canonicalized (via filepath.Clean) before use as a cache key.
type Source struct {
	Kind  SourceKind
	Value string
}

// NewFileSource builds a Source for a local schema file, canonicalizing path.
func NewFileSource(path string) Source {
	return Source{Kind: SourceFile, Value: filepath.Clean(path)}
}

// NewURLSource builds a Source for a remote schema.
func NewURLSource(url string) Source {
	return Source{Kind: SourceURL, Value: url}
}

// CacheOutcome tags how a SlotResult's bytes were obtained.
type CacheOutcome int

const (
	// OutcomeFresh means the bytes were fetched/read for the first time.
	OutcomeFresh CacheOutcome = iota
	// OutcomeHit means a still-valid disk cache entry served the bytes.
	OutcomeHit
	// OutcomeStale means a disk cache entry existed but its TTL had expired.
	OutcomeStale
	// OutcomeMiss means no cache entry existed.
	OutcomeMiss
)

// Stage identifies which phase of compilation produced a SlotResult's Err,
// so callers can choose between a "schema(load)" and "schema(compile)"
// diagnostic code.
type Stage int

const (
	// StageLoad means Err (if any) came from acquiring raw schema bytes.
	StageLoad Stage = iota
	// StageCompile means Err (if any) came from parsing or compiling them.
	StageCompile
)

// SlotResult is the outcome of compiling one Source, populated exactly once
// per SchemaCache slot. Validator and Raw are shared across every holder of
// this slot; eviction does not invalidate copies already handed out.
type SlotResult struct {
	Validator *jsonschema.Schema
	Raw       any
	Warnings  []string
	Outcome   CacheOutcome
	Stage     Stage
	Err       error
}
