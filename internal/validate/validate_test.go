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

package validate

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sargunv/jvl/internal/schema"
)

func newTestCache(t *testing.T, schemaPath string, schemaBody string) *schema.Cache {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, schemaPath, []byte(schemaBody), 0o644))
	fetcher := schema.NewFetcher(fs, "/cache")
	return schema.NewCache(fetcher, nil)
}

func TestValidateFileReportsTypeError(t *testing.T) {
	cache := newTestCache(t, "/schema.json", `{
		"type": "object",
		"properties": {"port": {"type": "integer"}}
	}`)
	src := schema.NewFileSource("/schema.json")

	result := ValidateFile(context.Background(), "/config.json", []byte(`{"port":"80"}`), &src, cache, false, false)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "schema(type)", result.Diagnostics[0].Code)
	require.NotNil(t, result.Diagnostics[0].Location)
}

func TestValidateFileEmptyOnSuccess(t *testing.T) {
	cache := newTestCache(t, "/schema.json", `{
		"type": "object",
		"properties": {"port": {"type": "integer"}}
	}`)
	src := schema.NewFileSource("/schema.json")

	result := ValidateFile(context.Background(), "/config.json", []byte(`{"port":80}`), &src, cache, false, false)
	assert.Empty(t, result.Diagnostics)
}

func TestValidateFileNoSchemaNonStrict(t *testing.T) {
	result := ValidateFile(context.Background(), "/x.json", []byte(`{"a":1}`), nil, nil, false, false)
	assert.Empty(t, result.Diagnostics)
}

func TestValidateFileNoSchemaStrict(t *testing.T) {
	result := ValidateFile(context.Background(), "/x.json", []byte(`{"a":1}`), nil, nil, false, true)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "no-schema", result.Diagnostics[0].Code)
	assert.Nil(t, result.Diagnostics[0].Location)
}

func TestValidateFileParseError(t *testing.T) {
	result := ValidateFile(context.Background(), "/x.json", []byte(`{not json`), nil, nil, false, false)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "parse", result.Diagnostics[0].Code)
}

func TestValidateFileOwnSchemaField(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/schema.json", []byte(`{"type":"object","required":["port"]}`), 0o644))
	fetcher := schema.NewFetcher(fs, "/cache")
	cache := schema.NewCache(fetcher, nil)

	result := ValidateFile(context.Background(), "/config.json", []byte(`{"$schema":"schema.json"}`), nil, cache, false, false)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "schema(required)", result.Diagnostics[0].Code)
}
