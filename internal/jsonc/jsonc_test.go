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

package jsonc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	src := []byte(`{"port": 80, "name": "x"}`)
	n, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindObject, n.Kind)
	require.Len(t, n.Members, 2)
	assert.Equal(t, "port", n.Members[0].Key)
	assert.Equal(t, "name", n.Members[1].Key)
}

func TestParseJSONCComments(t *testing.T) {
	src := []byte(`{
		// leading comment
		"port": 80, /* inline */
	}`)
	n, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, n.Members, 1)
	assert.Equal(t, "port", n.Members[0].Key)
}

func TestOffsetToPointerObjectKey(t *testing.T) {
	src := []byte(`{"port": "80"}`)
	n, err := Parse(src)
	require.NoError(t, err)

	keyOffset := strings.Index(string(src), `"port"`) + 1
	ptr, _, _, ok := OffsetToPointer(n, keyOffset)
	require.True(t, ok)
	assert.Equal(t, Pointer{"port"}, ptr)
}

func TestOffsetToPointerValue(t *testing.T) {
	src := []byte(`{"port": "80"}`)
	n, err := Parse(src)
	require.NoError(t, err)

	valOffset := strings.Index(string(src), `"80"`) + 1
	ptr, start, end, ok := OffsetToPointer(n, valOffset)
	require.True(t, ok)
	assert.Equal(t, Pointer{"port"}, ptr)
	assert.Equal(t, `"80"`, string(src[start:end]))
}

func TestOffsetToPointerStructuralTokenNone(t *testing.T) {
	src := []byte(`{"a": 1}`)
	n, err := Parse(src)
	require.NoError(t, err)

	braceOffset := 0
	_, _, _, ok := OffsetToPointer(n, braceOffset)
	assert.False(t, ok)
}

func TestOffsetToPointerArray(t *testing.T) {
	src := []byte(`{"items": [1, 2, 3]}`)
	n, err := Parse(src)
	require.NoError(t, err)

	secondElemOffset := strings.Index(string(src), "2")
	ptr, _, _, ok := OffsetToPointer(n, secondElemOffset)
	require.True(t, ok)
	assert.Equal(t, Pointer{"items", "1"}, ptr)
}

func TestResolve(t *testing.T) {
	src := []byte(`{"a": {"b": [10, 20]}}`)
	n, err := Parse(src)
	require.NoError(t, err)

	got, ok := Resolve(n, Pointer{"a", "b", "1"})
	require.True(t, ok)
	assert.Equal(t, "20", got.Raw)
}

func TestKeyRange(t *testing.T) {
	src := []byte(`{"$schema": "./s.json"}`)
	n, err := Parse(src)
	require.NoError(t, err)

	start, end, ok := KeyRange(n, Pointer{"$schema"})
	require.True(t, ok)
	assert.Equal(t, `"$schema"`, string(src[start:end]))
}

func TestParsePointerStringEscaping(t *testing.T) {
	assert.Equal(t, Pointer{"a/b", "c~d"}, ParsePointerString("/a~1b/c~0d"))
	assert.Nil(t, ParsePointerString(""))
}

func TestStandardizeStripsComments(t *testing.T) {
	out, err := Standardize([]byte(`{
		// comment
		"a": 1,
	}`))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "//")
}
