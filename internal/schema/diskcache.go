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

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

const (
	errReadDiskCache  = "failed to read schema disk cache entry"
	errWriteDiskCache = "failed to write schema disk cache entry"
)

// DiskCache stores fetched remote schema bytes on disk, one directory per
// URL, alongside a timestamp file recording when the entry was written.
type DiskCache struct {
	fs  afero.Fs
	mu  sync.RWMutex
	ttl time.Duration
	dir string
}

// NewDiskCache creates a DiskCache rooted at dir with the given TTL.
func NewDiskCache(fs afero.Fs, dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{fs: fs, dir: dir, ttl: ttl}
}

// Get returns the cached bytes for url if present and not expired. The bool
// result distinguishes a cold miss from a stale hit so callers can report the
// right CacheOutcome.
func (c *DiskCache) Get(url string) (data []byte, fresh bool, found bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entryDir := c.entryDir(url)
	data, err = afero.ReadFile(c.fs, filepath.Join(entryDir, "body"))
	if os.IsNotExist(err) {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, errors.Wrap(err, errReadDiskCache)
	}

	stampRaw, err := afero.ReadFile(c.fs, filepath.Join(entryDir, "stamp"))
	if err != nil {
		return data, false, true, nil
	}
	stampUnix, err := strconv.ParseInt(string(stampRaw), 10, 64)
	if err != nil {
		return data, false, true, nil
	}

	age := time.Since(time.Unix(stampUnix, 0))
	return data, age < c.ttl, true, nil
}

// Store writes body to the cache for url, stamping it with the current time.
func (c *DiskCache) Store(url string, body []byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entryDir := c.entryDir(url)
	if err := c.fs.MkdirAll(entryDir, 0o755); err != nil {
		return errors.Wrap(err, errWriteDiskCache)
	}
	if err := afero.WriteFile(c.fs, filepath.Join(entryDir, "body"), body, 0o644); err != nil {
		return errors.Wrap(err, errWriteDiskCache)
	}
	stamp := strconv.FormatInt(now.Unix(), 10)
	return errors.Wrap(
		afero.WriteFile(c.fs, filepath.Join(entryDir, "stamp"), []byte(stamp), 0o644),
		errWriteDiskCache,
	)
}

// Clean removes every entry from the cache.
func (c *DiskCache) Clean() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs.RemoveAll(c.dir)
}

// entryDir maps a URL to its cache directory, named by the hex SHA-256 of
// the URL string directly under the cache root.
func (c *DiskCache) entryDir(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}
