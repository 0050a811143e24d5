// Copyright 2022 Upbound Inc
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

package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// captureClient records every notification the server sends.
type captureClient struct {
	mu        sync.Mutex
	published []*protocol.PublishDiagnosticsParams
	logs      []*protocol.LogMessageParams
}

func (c *captureClient) Notify(_ context.Context, method string, params interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch p := params.(type) {
	case *protocol.PublishDiagnosticsParams:
		c.published = append(c.published, p)
	case *protocol.LogMessageParams:
		c.logs = append(c.logs, p)
	}
	_ = method
	return nil
}

func (c *captureClient) publishes(u protocol.DocumentURI) []*protocol.PublishDiagnosticsParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.PublishDiagnosticsParams
	for _, p := range c.published {
		if p.URI == u {
			out = append(out, p)
		}
	}
	return out
}

// waitForPublish polls until pred holds over uri's publishes or the deadline
// passes, returning the publishes observed either way.
func (c *captureClient) waitForPublish(u protocol.DocumentURI, pred func([]*protocol.PublishDiagnosticsParams) bool) []*protocol.PublishDiagnosticsParams {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got := c.publishes(u)
		if pred(got) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.publishes(u)
}

func newTestServer(t *testing.T, files map[string]string) (*Server, *captureClient) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	s, err := New(WithFS(fs))
	require.NoError(t, err)
	capture := &captureClient{}
	s.client = capture
	return s, capture
}

func open(s *Server, u protocol.DocumentURI, version int32, text string) {
	s.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: u, LanguageID: "json", Version: version, Text: text},
	})
}

func change(s *Server, u protocol.DocumentURI, version int32, text string) {
	s.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: u},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
}

const portSchema = `{
	"type": "object",
	"properties": {
		"port": {"type": "integer", "description": "HTTP port"}
	}
}`

func portProject() map[string]string {
	return map[string]string{
		"/proj/jvl.json":    `{"schemas": [{"files": ["**/*.json"], "path": "schema.json"}]}`,
		"/proj/schema.json": portSchema,
	}
}

func TestDocumentStore(t *testing.T) {
	store := NewDocumentStore()
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	_, ok := store.Get(u)
	assert.False(t, ok)

	store.Set(u, 1, `{}`)
	doc, ok := store.Get(u)
	require.True(t, ok)
	assert.Equal(t, int32(1), doc.Version)
	assert.Equal(t, []byte(`{}`), doc.Text)

	assert.True(t, store.MatchesVersion(u, 1))
	assert.False(t, store.MatchesVersion(u, 2))

	store.Set(u, 2, `{"a": 1}`)
	assert.True(t, store.MatchesVersion(u, 2))
	assert.Equal(t, []protocol.DocumentURI{u}, store.URIs())

	store.Remove(u)
	assert.False(t, store.MatchesVersion(u, 2))
	_, ok = store.Get(u)
	assert.False(t, ok)
}

func TestValidationPublishesTypeError(t *testing.T) {
	s, capture := newTestServer(t, portProject())
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	text := `{"port": "80"}`
	open(s, u, 1, text)

	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0
	})
	require.NotEmpty(t, got)

	p := got[len(got)-1]
	assert.Equal(t, uint32(1), p.Version)
	require.Len(t, p.Diagnostics, 1)
	d := p.Diagnostics[0]
	assert.Equal(t, "schema(type)", d.Code)
	assert.Equal(t, "jvl", d.Source)
	assert.Equal(t, protocol.DiagnosticSeverityError, d.Severity)
	// Range covers the "80" value token.
	assert.Equal(t, uint32(9), d.Range.Start.Character)
	assert.Equal(t, uint32(13), d.Range.End.Character)
}

func TestRapidEditsPublishOnlyCurrentVersion(t *testing.T) {
	s, capture := newTestServer(t, portProject())
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	open(s, u, 1, `{"port": "80"}`)
	for v := int32(2); v <= 10; v++ {
		change(s, u, v, fmt.Sprintf(`{"port": "8%d"}`, v))
	}
	change(s, u, 11, `{"port": 80}`)

	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0 && ps[len(ps)-1].Version == 11
	})
	require.NotEmpty(t, got)

	// The version guard must suppress every publish whose snapshot version
	// no longer matches the store; with the edits arriving inside the
	// debounce window, only version 11 may ever reach the client.
	for _, p := range got {
		assert.Equal(t, uint32(11), p.Version)
		assert.Empty(t, p.Diagnostics)
	}
}

func TestCloseBeforeDebounceSuppressesPublish(t *testing.T) {
	s, capture := newTestServer(t, portProject())
	u := protocol.DocumentURI(uri.File("/proj/a.json"))

	open(s, u, 1, `{"port": "80"}`)
	s.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: u},
	})

	time.Sleep(2 * debounceInterval)

	for _, p := range capture.publishes(u) {
		assert.Empty(t, p.Diagnostics, "no non-empty diagnostics may be published after didClose")
	}
}

func TestStrictOutsideFilterSkipped(t *testing.T) {
	s, capture := newTestServer(t, map[string]string{
		"/proj/jvl.json": `{"strict": true, "files": ["src/**"]}`,
	})
	u := protocol.DocumentURI(uri.File("/proj/other/x.json"))

	open(s, u, 1, `{}`)

	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0
	})
	require.NotEmpty(t, got)
	assert.Empty(t, got[len(got)-1].Diagnostics)
}

func TestStrictInsideFilterNoSchema(t *testing.T) {
	s, capture := newTestServer(t, map[string]string{
		"/proj/jvl.json": `{"strict": true, "files": ["src/**"]}`,
	})
	u := protocol.DocumentURI(uri.File("/proj/src/y.json"))

	open(s, u, 1, `{}`)

	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0
	})
	require.NotEmpty(t, got)

	p := got[len(got)-1]
	require.Len(t, p.Diagnostics, 1)
	d := p.Diagnostics[0]
	assert.Equal(t, "no-schema", d.Code)
	assert.Equal(t, protocol.Position{}, d.Range.Start)
	assert.Equal(t, protocol.Position{}, d.Range.End)
}

func TestConfigChangeTriggersRevalidation(t *testing.T) {
	s, capture := newTestServer(t, portProject())
	fs := s.fs
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	open(s, u, 1, `{"port": "80"}`)
	capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0
	})

	// Dropping the mapping makes the document schema-less; the next
	// validation round must observe the new config and clear the error.
	require.NoError(t, afero.WriteFile(fs, "/proj/jvl.json", []byte(`{}`), 0o644))
	s.DidChangeWatchedFiles(context.Background(), &protocol.DidChangeWatchedFilesParams{
		Changes: []*protocol.FileEvent{{URI: uri.File("/proj/jvl.json"), Type: protocol.FileChangeTypeChanged}},
	})

	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0 && len(ps[len(ps)-1].Diagnostics) == 0
	})
	require.NotEmpty(t, got)
	assert.Empty(t, got[len(got)-1].Diagnostics)
}

func TestBrokenConfigReloadKeepsLastGood(t *testing.T) {
	s, capture := newTestServer(t, portProject())
	fs := s.fs
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	open(s, u, 1, `{"port": "80"}`)
	capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > 0
	})

	// A syntax error in jvl.json must not strand the open documents: the
	// last good configuration keeps resolving them.
	require.NoError(t, afero.WriteFile(fs, "/proj/jvl.json", []byte(`{"schemas": `), 0o644))
	s.DidChangeWatchedFiles(context.Background(), &protocol.DidChangeWatchedFilesParams{
		Changes: []*protocol.FileEvent{{URI: uri.File("/proj/jvl.json"), Type: protocol.FileChangeTypeChanged}},
	})

	before := len(capture.publishes(u))
	got := capture.waitForPublish(u, func(ps []*protocol.PublishDiagnosticsParams) bool {
		return len(ps) > before
	})
	require.Greater(t, len(got), before)

	p := got[len(got)-1]
	require.Len(t, p.Diagnostics, 1)
	assert.Equal(t, "schema(type)", p.Diagnostics[0].Code)
}

func TestHoverOnPropertyKey(t *testing.T) {
	s, _ := newTestServer(t, portProject())
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	text := `{"port": 80}`
	open(s, u, 1, text)

	hover := s.Hover(context.Background(), &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: u},
			Position:     protocol.Position{Line: 0, Character: 3},
		},
	})
	require.NotNil(t, hover)
	assert.Equal(t, protocol.Markdown, hover.Contents.Kind)
	assert.Equal(t, "HTTP port", hover.Contents.Value)
	require.NotNil(t, hover.Range)
	// Range covers the "port" key token.
	assert.Equal(t, uint32(1), hover.Range.Start.Character)
	assert.Equal(t, uint32(7), hover.Range.End.Character)
}

func TestHoverPastEndOfDocument(t *testing.T) {
	s, _ := newTestServer(t, portProject())
	u := protocol.DocumentURI(uri.File("/proj/config.json"))

	open(s, u, 1, `{"port": 80}`)

	hover := s.Hover(context.Background(), &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: u},
			Position:     protocol.Position{Line: 42, Character: 99},
		},
	})
	assert.Nil(t, hover)
}

func TestUnsupportedSchemeLoggedOnce(t *testing.T) {
	s, capture := newTestServer(t, nil)
	u := protocol.DocumentURI("untitled:Untitled-1")

	open(s, u, 1, `{}`)
	open(s, u, 2, `{}`)

	// The document stays in the store so a later didClose still matches.
	_, ok := s.docs.Get(u)
	assert.True(t, ok)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	assert.Len(t, capture.logs, 1)
	assert.Empty(t, capture.published)
}
