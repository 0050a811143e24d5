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

package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/sargunv/jvl/internal/schema"
)

const (
	errParseConfig   = "failed to parse jvl.json"
	errCanonicalRoot = "failed to canonicalize project root"
)

// Parse decodes jvl.json bytes. Any top-level key not named in Config is a
// parse error.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errParseConfig)
	}
	return cfg, nil
}

// Compile derives a CompiledConfig from cfg, rooted at the directory
// containing configPath. Known-but-missing fields take their declared
// defaults (an empty Files list becomes DefaultFiles).
func Compile(cfg Config, configPath string) (*CompiledConfig, error) {
	root, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, errors.Wrap(err, errCanonicalRoot)
	}
	root = filepath.Clean(root)

	files := cfg.Files
	if len(files) == 0 {
		files = DefaultFiles
	}

	mappings := make([]CompiledMapping, 0, len(cfg.Schemas))
	for _, m := range cfg.Schemas {
		src, err := resolveMappingSource(m, root)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, CompiledMapping{Globs: m.Files, Source: src})
	}

	return &CompiledConfig{
		SchemaURL:   cfg.SchemaURL,
		Mappings:    mappings,
		ProjectRoot: root,
		Strict:      cfg.Strict,
		FileFilter:  NewFileFilter(files),
	}, nil
}

func resolveMappingSource(m SchemaMapping, root string) (schema.Source, error) {
	if m.URL != "" {
		return schema.NewURLSource(m.URL), nil
	}
	path := m.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return schema.NewFileSource(path), nil
}

// IsAbsoluteURL reports whether s looks like an absolute http(s) URL rather
// than a filesystem path, used when resolving a document's own "$schema"
// field (see internal/validate).
func IsAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
