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
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// filterPattern is one "files" entry: a glob, tagged as an exclusion when it
// carries the "!" prefix.
type filterPattern struct {
	glob    string
	exclude bool
}

// FileFilter is jvl.json's "files" list compiled into an ordered matcher.
// Order matters: a later pattern overrides the verdict of an earlier one, so
// "!node_modules/**" after "**/*.json" excludes node_modules even though the
// first pattern would have included it.
type FileFilter struct {
	patterns []filterPattern
}

// NewFileFilter compiles an ordered glob list into a FileFilter.
func NewFileFilter(globs []string) *FileFilter {
	f := &FileFilter{patterns: make([]filterPattern, 0, len(globs))}
	for _, g := range globs {
		if strings.HasPrefix(g, "!") {
			f.patterns = append(f.patterns, filterPattern{glob: g[1:], exclude: true})
		} else {
			f.patterns = append(f.patterns, filterPattern{glob: g})
		}
	}
	return f
}

// Match reports whether relPath is included, replaying the pattern list in
// order and keeping only the verdict of the last pattern that matched.
func (f *FileFilter) Match(relPath string) bool {
	relPath = filepathToSlash(relPath)
	matched := false
	for _, p := range f.patterns {
		if globMatch(p.glob, relPath) {
			matched = !p.exclude
		}
	}
	return matched
}

func globMatch(pattern, relPath string) bool {
	ok, err := doublestar.Match(pattern, filepathToSlash(relPath))
	return err == nil && ok
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
