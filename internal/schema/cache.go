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
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
)

// slot is a single-initialization container: the outer Cache mutex protects
// only the map insertion, while once guards the (possibly slow) compile work
// so unrelated lookups are never blocked by it. populated flips to true as the
// last step of once.Do's function, after result is written, letting
// GetSchemaValue observe completion without itself racing the initializer.
type slot struct {
	once      sync.Once
	populated atomic.Bool
	result    SlotResult
}

// Cache maps a Source to a single-initialization SlotResult, process-wide.
type Cache struct {
	mu      sync.Mutex
	slots   map[Source]*slot
	fetcher *Fetcher
	log     logging.Logger
}

// NewCache constructs an empty Cache backed by fetcher.
func NewCache(fetcher *Fetcher, log logging.Logger) *Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Cache{
		slots:   make(map[Source]*slot),
		fetcher: fetcher,
		log:     log,
	}
}

// GetOrCompile returns the compiled SlotResult for src, compiling it at most
// once. A failed compile is itself cached: subsequent lookups observe the
// same error until the slot is evicted.
func (c *Cache) GetOrCompile(ctx context.Context, src Source, noCache bool) SlotResult {
	c.mu.Lock()
	s, ok := c.slots[src]
	if !ok {
		s = &slot{}
		c.slots[src] = s
	}
	c.mu.Unlock()

	s.once.Do(func() {
		s.result = c.initSlot(ctx, src, noCache)
		s.populated.Store(true)
	})
	return s.result
}

func (c *Cache) initSlot(ctx context.Context, src Source, noCache bool) SlotResult {
	raw, outcome, err := c.fetcher.Fetch(ctx, src, noCache)
	if err != nil {
		return SlotResult{Outcome: outcome, Stage: StageLoad, Err: err}
	}

	resourceURL := src.Value
	if src.Kind == SourceFile {
		resourceURL = fmt.Sprintf("file://%s", src.Value)
	}

	validator, doc, err := compile(raw, resourceURL)
	if err != nil {
		return SlotResult{Outcome: outcome, Stage: StageCompile, Err: err}
	}

	return SlotResult{Validator: validator, Raw: doc, Outcome: outcome}
}

// GetSchemaValue returns the raw schema value for src without triggering a
// compile if the slot has not been populated yet.
func (c *Cache) GetSchemaValue(src Source) (any, bool) {
	c.mu.Lock()
	s, ok := c.slots[src]
	c.mu.Unlock()
	if !ok || !s.populated.Load() {
		return nil, false
	}
	return s.result.Raw, s.result.Raw != nil
}

// Evict removes src's slot, forcing recompilation on next access. Any
// SlotResult already handed out to a caller remains valid and unaffected.
func (c *Cache) Evict(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, src)
}
