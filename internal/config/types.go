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

// Package config loads jvl.json project configuration, compiles it into an
// ordered glob filter plus schema mappings, and caches the compiled result
// per config path, invalidating on workspace file-watcher events.
package config

import "github.com/sargunv/jvl/internal/schema"

// DefaultFiles is the file set jvl validates when a project declares none.
var DefaultFiles = []string{"**/*.json", "**/*.jsonc"}

// SchemaMapping is one entry of the "schemas" array in jvl.json: a glob set
// paired with either a remote URL or a local path.
type SchemaMapping struct {
	Files []string `json:"files"`
	URL   string   `json:"url,omitempty"`
	Path  string   `json:"path,omitempty"`
}

// Config is the deserialized shape of jvl.json. Unknown top-level keys are
// rejected by the decoder that produces this struct (see Parse); missing
// known keys take the zero value, which Compile maps to the declared
// defaults.
type Config struct {
	SchemaURL string          `json:"schema_url,omitempty"`
	Files     []string        `json:"files,omitempty"`
	Schemas   []SchemaMapping `json:"schemas,omitempty"`
	Strict    bool            `json:"strict,omitempty"`
}

// CompiledMapping is a SchemaMapping with its glob set ready to match and
// its source resolved to a single schema.Source.
type CompiledMapping struct {
	Globs  []string
	Source schema.Source
}

// Matches reports whether relPath matches any of the mapping's globs.
func (m CompiledMapping) Matches(relPath string) bool {
	for _, g := range m.Globs {
		if globMatch(g, relPath) {
			return true
		}
	}
	return false
}

// CompiledConfig is the derived, shareable form of a parsed jvl.json. It is
// handed out by reference; cloning it is a pointer copy.
type CompiledConfig struct {
	SchemaURL   string
	Mappings    []CompiledMapping
	ProjectRoot string
	Strict      bool
	FileFilter  *FileFilter
}
