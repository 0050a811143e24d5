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

// Package server services incoming LSP requests: it tracks open documents,
// schedules debounced validation, answers hover requests, and reacts to
// workspace jvl.json changes.
package server

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"golang.org/x/sync/semaphore"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sargunv/jvl/internal/config"
	"github.com/sargunv/jvl/internal/coord"
	"github.com/sargunv/jvl/internal/schema"
	"github.com/sargunv/jvl/internal/version"
)

const (
	serverName     = "jvl"
	fileScheme     = "file://"
	configGlob     = "**/" + config.ConfigFileName
	watchedFilesID = "workspace/didChangeWatchedFiles-1"

	errPublishDiagnostics = "failed to publish diagnostics"
	errRegisteringWatches = "failed to register workspace watchers"
	errLogMessage         = "failed to send log message"
	errResolveConfig      = "failed to resolve workspace configuration"
)

// notifier is the subset of jsonrpc2.Conn the server publishes through,
// narrowed so tests can capture notifications.
type notifier interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

// Server services incoming LSP requests.
type Server struct {
	conn   jsonrpc2.Conn
	client notifier
	log    logging.Logger

	docs    *DocumentStore
	configs *config.Cache
	schemas *schema.Cache
	fs      afero.Fs

	// encoding is written once during initialize; the LSP lifecycle
	// guarantees no other request is handled before initialize returns.
	encoding coord.Encoding

	sem *semaphore.Weighted

	mu      sync.Mutex
	pending map[protocol.DocumentURI]context.CancelFunc
	logged  map[protocol.DocumentURI]bool
}

// New returns a new Server.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		log:      logging.NewNopLogger(),
		docs:     NewDocumentStore(),
		fs:       afero.NewOsFs(),
		encoding: coord.UTF16,
		sem:      semaphore.NewWeighted(maxConcurrentValidations),
		pending:  make(map[protocol.DocumentURI]context.CancelFunc),
		logged:   make(map[protocol.DocumentURI]bool),
	}

	for _, o := range opts {
		o(s)
	}

	if s.schemas == nil {
		cacheDir, err := schema.DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		s.schemas = schema.NewCache(schema.NewFetcher(s.fs, cacheDir), s.log)
	}
	if s.configs == nil {
		s.configs = config.NewCache(s.fs, s.log)
	}

	return s, nil
}

// Option provides a way to override default behavior of the Server.
type Option func(*Server)

// WithLogger overrides the default logging.Logger for the Server with the
// supplied logging.Logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithFS overrides the filesystem the Server reads configs and local schemas
// from. Used by tests with an afero in-memory filesystem.
func WithFS(fs afero.Fs) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// WithSchemaCache overrides the Server's schema cache.
func WithSchemaCache(c *schema.Cache) Option {
	return func(s *Server) {
		s.schemas = c
	}
}

// WithConfigCache overrides the Server's config cache.
func WithConfigCache(c *config.Cache) Option {
	return func(s *Server) {
		s.configs = c
	}
}

// stdio adapts stdin/stdout into the io.ReadWriteCloser the JSON-RPC stream
// wants. Nothing else in the process may write to stdout once the server is
// running.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }

// Run starts the server on stdin/stdout and blocks until the connection
// closes or ctx is cancelled. dispatch receives every incoming request.
func (s *Server) Run(ctx context.Context, dispatch func(ctx context.Context, reply jsonrpc2.Replier, r jsonrpc2.Request) error) error {
	stream := jsonrpc2.NewStream(stdio{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.client = conn

	conn.Go(ctx, jsonrpc2.AsyncHandler(jsonrpc2.ReplyHandler(dispatch)))

	select {
	case <-ctx.Done():
		return conn.Close()
	case <-conn.Done():
		return conn.Err()
	}
}

// serverCapabilities extends the wire capabilities with the negotiated
// position encoding, which postdates the typed protocol structs.
type serverCapabilities struct {
	protocol.ServerCapabilities
	PositionEncoding string `json:"positionEncoding,omitempty"`
}

type initializeResult struct {
	Capabilities serverCapabilities   `json:"capabilities"`
	ServerInfo   *protocol.ServerInfo `json:"serverInfo,omitempty"`
}

// Initialize handles calls to Initialize: it negotiates the position
// encoding and advertises full-sync document synchronization plus hover.
func (s *Server) Initialize(_ context.Context, params *protocol.InitializeParams, positionEncodings []string) any {
	s.encoding = coord.NegotiateEncoding(positionEncodings)

	if params.ClientInfo != nil {
		s.log.Debug("initialize", "client", params.ClientInfo.Name, "encoding", coord.EncodingKind(s.encoding))
	}

	return initializeResult{
		Capabilities: serverCapabilities{
			ServerCapabilities: protocol.ServerCapabilities{
				TextDocumentSync: protocol.TextDocumentSyncOptions{
					OpenClose: true,
					Change:    protocol.TextDocumentSyncKindFull,
				},
				HoverProvider: true,
			},
			PositionEncoding: coord.EncodingKind(s.encoding),
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: version.GetVersion(),
		},
	}
}

// Shutdown handles calls to Shutdown. The process exits when the transport
// ends, so there is nothing to tear down here.
func (s *Server) Shutdown(_ context.Context) {}

// Exit closes the connection, ending Run.
func (s *Server) Exit(_ context.Context) error {
	return s.conn.Close()
}

// Initialized handles the initialized notification by requesting dynamic
// registration of a workspace watcher on **/jvl.json. Registration failure
// only degrades config reactivity, so it is logged and swallowed.
func (s *Server) Initialized(ctx context.Context) {
	go func() {
		if _, err := s.conn.Call(ctx, protocol.MethodClientRegisterCapability, &protocol.RegistrationParams{
			Registrations: []protocol.Registration{
				{
					ID:     watchedFilesID,
					Method: protocol.MethodWorkspaceDidChangeWatchedFiles,
					RegisterOptions: protocol.DidChangeWatchedFilesRegistrationOptions{
						Watchers: []protocol.FileSystemWatcher{
							{
								GlobPattern: configGlob,
								Kind:        protocol.WatchKind(int(protocol.WatchKindCreate) | int(protocol.WatchKindChange) | int(protocol.WatchKindDelete)),
							},
						},
					},
				},
			},
		}, nil); err != nil {
			s.log.Debug(errRegisteringWatches, "error", err)
			s.logMessage(ctx, protocol.MessageTypeWarning, errRegisteringWatches+": "+err.Error())
		}
	}()
}

// DidOpen handles calls to DidOpen.
func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) {
	u := params.TextDocument.URI
	s.docs.Set(u, params.TextDocument.Version, params.TextDocument.Text)
	s.scheduleValidation(ctx, u)
}

// DidChange handles calls to DidChange. With full sync the last content
// change carries the complete new text. The spawned validation task is never
// awaited here.
func (s *Server) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) {
	u := params.TextDocument.URI
	for _, change := range params.ContentChanges {
		s.docs.Set(u, params.TextDocument.Version, change.Text)
	}
	s.scheduleValidation(ctx, u)
}

// DidClose handles calls to DidClose: the entry is removed (so any in-flight
// validation's version guard fails) and the editor's markers are cleared.
func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) {
	u := params.TextDocument.URI
	s.cancelPending(u)
	s.docs.Remove(u)
	s.publishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         u,
		Diagnostics: []protocol.Diagnostic{},
	})
}

// DidChangeWatchedFiles handles workspace config file events. Every touched
// jvl.json entry is invalidated before any re-validation is scheduled, so
// the subsequent resolution lookups observe the removal.
func (s *Server) DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) {
	invalidated := false
	for _, change := range params.Changes {
		u := change.URI
		if !isFileURI(u) {
			continue
		}
		path := uri.URI(u).Filename()
		if !strings.HasSuffix(path, config.ConfigFileName) {
			continue
		}
		s.log.Debug("invalidating configuration", "path", path)
		s.configs.Invalidate(path)
		invalidated = true
	}
	if !invalidated {
		return
	}
	for _, u := range s.docs.URIs() {
		s.scheduleValidation(ctx, u)
	}
}

func (s *Server) publishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) {
	if s.client == nil {
		return
	}
	if err := s.client.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, params); err != nil {
		s.log.Debug(errPublishDiagnostics, "error", err)
	}
}

func (s *Server) logMessage(ctx context.Context, typ protocol.MessageType, msg string) {
	if s.client == nil {
		return
	}
	if err := s.client.Notify(ctx, protocol.MethodWindowLogMessage, &protocol.LogMessageParams{
		Type:    typ,
		Message: msg,
	}); err != nil {
		s.log.Debug(errLogMessage, "error", err)
	}
}

func isFileURI(u protocol.DocumentURI) bool {
	return strings.HasPrefix(string(u), fileScheme)
}

// logUnsupportedScheme logs one informational message per distinct
// non-file URI; validation and hover return no results for them.
func (s *Server) logUnsupportedScheme(ctx context.Context, u protocol.DocumentURI) {
	s.mu.Lock()
	seen := s.logged[u]
	s.logged[u] = true
	s.mu.Unlock()
	if seen {
		return
	}
	s.logMessage(ctx, protocol.MessageTypeInfo, "unsupported URI scheme, skipping: "+string(u))
}
