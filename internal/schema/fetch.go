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
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

const (
	errReadFile       = "failed to read schema file"
	errFetchRemote    = "failed to fetch remote schema"
	errFetchStatus    = "remote schema fetch returned non-200 status"
	defaultHTTPClientTimeout = 10 * time.Second
	defaultDiskCacheTTL      = 15 * time.Minute
	maxFetchRetries          = 3
)

// Fetcher acquires the raw bytes of a Source. A Fetcher is constructed once
// per process and shared: its http.Client is never recreated per request.
type Fetcher struct {
	fs     afero.Fs
	client *http.Client
	disk   *DiskCache
}

// NewFetcher builds a Fetcher with a process-wide HTTP client and an on-disk
// TTL cache rooted at cacheDir.
func NewFetcher(fs afero.Fs, cacheDir string) *Fetcher {
	return &Fetcher{
		fs:     fs,
		client: &http.Client{Timeout: defaultHTTPClientTimeout},
		disk:   NewDiskCache(fs, cacheDir, defaultDiskCacheTTL),
	}
}

// Fetch acquires the raw bytes for source, reading local files directly and
// fetching URLs through the disk cache, retrying transient HTTP failures
// with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, src Source, noCache bool) ([]byte, CacheOutcome, error) {
	if src.Kind == SourceFile {
		b, err := afero.ReadFile(f.fs, src.Value)
		if err != nil {
			return nil, OutcomeMiss, errors.Wrap(err, errReadFile)
		}
		return b, OutcomeFresh, nil
	}
	return f.fetchURL(ctx, src.Value, noCache)
}

func (f *Fetcher) fetchURL(ctx context.Context, url string, noCache bool) ([]byte, CacheOutcome, error) {
	if !noCache {
		data, fresh, found, err := f.disk.Get(url)
		if err != nil {
			return nil, OutcomeMiss, err
		}
		if found && fresh {
			return data, OutcomeHit, nil
		}
		if found {
			// Stale: attempt a refetch, but fall back to the stale copy if
			// the network is unavailable.
			body, fetchErr := f.httpGetWithRetry(ctx, url)
			if fetchErr != nil {
				return data, OutcomeStale, nil
			}
			_ = f.disk.Store(url, body, time.Now())
			return body, OutcomeFresh, nil
		}
	}

	body, err := f.httpGetWithRetry(ctx, url)
	if err != nil {
		return nil, OutcomeMiss, err
	}
	if !noCache {
		_ = f.disk.Store(url, body, time.Now())
	}
	return body, OutcomeFresh, nil
}

func (f *Fetcher) httpGetWithRetry(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, errFetchRemote))
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return errors.Wrap(err, errFetchRemote)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(errors.Wrap(errors.Errorf("status %d", resp.StatusCode), errFetchStatus))
			}
			return errors.Wrap(errors.Errorf("status %d", resp.StatusCode), errFetchStatus)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, errFetchRemote)
		}
		body = b
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// DefaultCacheDir returns the on-disk schema cache root under the user's
// cache directory (os.UserCacheDir), creating no directories itself.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "jvl", "schemas"), nil
}
