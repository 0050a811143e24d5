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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestAnnotateDescendsProperties(t *testing.T) {
	doc := parseDoc(t, `{
		"properties": {
			"port": {"title": "Port", "description": "HTTP port"}
		}
	}`)
	got, ok := Annotate(doc, []string{"port"})
	require.True(t, ok)
	assert.Equal(t, "**Port**\n\nHTTP port", got)
}

func TestAnnotateArrayPrefixItems(t *testing.T) {
	doc := parseDoc(t, `{
		"prefixItems": [{"description": "first"}, {"description": "second"}]
	}`)
	got, ok := Annotate(doc, []string{"1"})
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestAnnotateArrayItemsFallback(t *testing.T) {
	doc := parseDoc(t, `{"items": {"description": "any element"}}`)
	got, ok := Annotate(doc, []string{"5"})
	require.True(t, ok)
	assert.Equal(t, "any element", got)
}

func TestAnnotateResolvesFragmentRef(t *testing.T) {
	doc := parseDoc(t, `{
		"properties": {"a": {"$ref": "#/$defs/X"}},
		"$defs": {"X": {"description": "resolved"}}
	}`)
	got, ok := Annotate(doc, []string{"a"})
	require.True(t, ok)
	assert.Equal(t, "resolved", got)
}

func TestAnnotateRejectsExternalRef(t *testing.T) {
	doc := parseDoc(t, `{
		"properties": {"a": {"$ref": "https://example.com/other.json"}}
	}`)
	_, ok := Annotate(doc, []string{"a"})
	assert.False(t, ok)
}

func TestAnnotateCycleDetection(t *testing.T) {
	doc := parseDoc(t, `{
		"properties": {"a": {"$ref": "#/$defs/X"}},
		"$defs": {"X": {"properties": {"a": {"$ref": "#/$defs/X"}}}}
	}`)
	_, ok := Annotate(doc, []string{"a"})
	assert.False(t, ok)

	// A deeper pointer revisits the same fragment, so the walk must be cut
	// by the visited set rather than recursing forever.
	_, ok = Annotate(doc, []string{"a", "a", "a"})
	assert.False(t, ok)
}

func TestAnnotateSelfRefCycle(t *testing.T) {
	doc := parseDoc(t, `{
		"$defs": {"loop": {"$ref": "#/$defs/loop", "title": "unreachable"}},
		"properties": {"a": {"$ref": "#/$defs/loop"}}
	}`)
	_, ok := Annotate(doc, []string{"a"})
	assert.False(t, ok)
}

func TestAnnotateNoAnnotationReturnsFalse(t *testing.T) {
	doc := parseDoc(t, `{"properties": {"a": {"type": "string"}}}`)
	_, ok := Annotate(doc, []string{"a"})
	assert.False(t, ok)
}

func TestTruncateUTF8Boundary(t *testing.T) {
	exact := strings.Repeat("a", maxAnnotationBytes)
	assert.Equal(t, exact, truncateUTF8(exact, maxAnnotationBytes))

	over := strings.Repeat("a", maxAnnotationBytes+1)
	got := truncateUTF8(over, maxAnnotationBytes)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len(got)-len("…"), maxAnnotationBytes)
}
