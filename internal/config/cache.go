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
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

// ErrNoConfig is returned by GetOrLoad when no jvl.json exists in the
// document's directory or any of its ancestors; callers treat this as "skip
// this document".
var ErrNoConfig = errors.New("no jvl.json found")

// Cache maps a canonical jvl.json path to its compiled, shared form. Entries
// survive until explicitly invalidated by a workspace file-watcher event on
// that config path (see Invalidate). Each successful compile is also
// recorded in lastGood, which Invalidate leaves alone, so a reload that
// fails to parse falls back to the previous good configuration instead of
// leaving every document under it unresolvable.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*CompiledConfig
	lastGood map[string]*CompiledConfig
	fs       afero.Fs
	log      logging.Logger
}

// NewCache constructs an empty Cache backed by fs.
func NewCache(fs afero.Fs, log logging.Logger) *Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Cache{
		entries:  make(map[string]*CompiledConfig),
		lastGood: make(map[string]*CompiledConfig),
		fs:       fs,
		log:      log,
	}
}

// GetOrLoad locates the jvl.json governing documentPath and returns its
// compiled form, parsing and compiling on first access. When a reload fails
// but an earlier compile of the same path succeeded, that last good config
// is returned alongside the error; cfg is nil only when there is nothing to
// fall back to.
func (c *Cache) GetOrLoad(documentPath string) (cfg *CompiledConfig, configPath string, err error) {
	configPath, ok := Locate(c.fs, filepath.Dir(documentPath))
	if !ok {
		return nil, "", ErrNoConfig
	}

	c.mu.Lock()
	if cfg, ok := c.entries[configPath]; ok {
		c.mu.Unlock()
		return cfg, configPath, nil
	}
	c.mu.Unlock()

	compiled, loadErr := c.load(configPath)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[configPath]; ok {
		// Another goroutine raced us to populate this entry; the map
		// must never hold two divergent CompiledConfigs for one path.
		return existing, configPath, nil
	}
	if loadErr != nil {
		if good, ok := c.lastGood[configPath]; ok {
			// Reinstall the last good compile so subsequent lookups hit
			// the cache instead of re-parsing the broken file.
			c.entries[configPath] = good
			return good, configPath, loadErr
		}
		return nil, configPath, loadErr
	}
	c.entries[configPath] = compiled
	c.lastGood[configPath] = compiled
	return compiled, configPath, nil
}

func (c *Cache) load(configPath string) (*CompiledConfig, error) {
	raw, err := afero.ReadFile(c.fs, configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read jvl.json")
	}
	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Compile(parsed, configPath)
}

// Invalidate removes configPath's cached entry, forcing a reload on next
// GetOrLoad. The last good compile is kept for fallback should that reload
// fail. Callers must finish this call before scheduling re-validation of
// open documents that depend on configPath.
func (c *Cache) Invalidate(configPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, configPath)
}
