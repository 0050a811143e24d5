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
	"errors"
	"fmt"
	"path/filepath"

	pkgerrors "github.com/crossplane/crossplane-runtime/pkg/errors"

	"github.com/sargunv/jvl/internal/schema"
)

// Resolved is the outcome of resolving a document's effective schema source
// against its governing jvl.json. A nil Source and Strict=false is the
// "skip this document" sentinel.
type Resolved struct {
	Source    *schema.Source
	Strict    bool
	ConfigLog string
	// ConfigErr is set when the governing jvl.json failed to reload and
	// resolution proceeded with the last good configuration. Callers
	// surface it (log message, diagnostic on the open config file) but
	// still act on the resolution.
	ConfigErr error
}

// Resolve determines documentPath's effective schema source: locate the
// config, relativize the document path against its project root, apply the
// file filter, then the ordered schema mappings, falling back to schema_url.
func Resolve(cache *Cache, documentPath string) (Resolved, error) {
	cc, _, err := cache.GetOrLoad(documentPath)
	var configErr error
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return Resolved{}, nil
		}
		if cc == nil {
			return Resolved{}, pkgerrors.Wrap(err, "failed to resolve configuration")
		}
		// A reload failed but an earlier compile succeeded; resolve
		// against the last good configuration and let the caller report
		// the failure.
		configErr = err
	}

	rel, relErr := filepath.Rel(cc.ProjectRoot, documentPath)
	var configLog string
	if relErr != nil || rel == ".." || hasParentPrefix(rel) {
		rel = documentPath
		configLog = fmt.Sprintf("document path %q is outside project root %q; globs will not match", documentPath, cc.ProjectRoot)
	}

	if !cc.FileFilter.Match(rel) {
		return Resolved{ConfigLog: configLog, ConfigErr: configErr}, nil
	}

	for _, m := range cc.Mappings {
		if m.Matches(rel) {
			src := m.Source
			return Resolved{Source: &src, Strict: cc.Strict, ConfigLog: configLog, ConfigErr: configErr}, nil
		}
	}

	if cc.SchemaURL != "" {
		src := schema.NewURLSource(cc.SchemaURL)
		return Resolved{Source: &src, Strict: cc.Strict, ConfigLog: configLog, ConfigErr: configErr}, nil
	}

	return Resolved{Strict: cc.Strict, ConfigLog: configLog, ConfigErr: configErr}, nil
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}
