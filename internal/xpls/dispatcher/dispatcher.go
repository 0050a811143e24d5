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

// Package dispatcher routes incoming JSON-RPC requests to the appropriate
// server method, parsing method-specific parameters along the way.
package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/crossplane/crossplane-runtime/pkg/logging"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const (
	errParseInitializeParameters = "failed to parse initialize parameters"
	errParseOpenParameters       = "failed to parse document open parameters"
	errParseChangeParameters     = "failed to parse document change parameters"
	errParseCloseParameters      = "failed to parse document close parameters"
	errParseHoverParameters      = "failed to parse hover parameters"
	errParseWatchedParameters    = "failed to parse watched files parameters"
)

// Server defines the set of LSP methods we currently support.
type Server interface {
	Initialize(ctx context.Context, params *protocol.InitializeParams, positionEncodings []string) any
	Initialized(ctx context.Context)
	Shutdown(ctx context.Context)
	Exit(ctx context.Context) error
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams)
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams)
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams)
	Hover(ctx context.Context, params *protocol.HoverParams) *protocol.Hover
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams)
}

// Dispatcher is responsible for routing JSONRPC request events to the
// appropriate place.
type Dispatcher struct {
	log logging.Logger
}

// New returns a new Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log: logging.NewNopLogger(),
	}

	for _, o := range opts {
		o(d)
	}

	return d
}

// Option provides a way to override default behavior of the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the default logging.Logger for the Dispatcher with the
// supplied logging.Logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// initializeCapabilities extracts the client's advertised position
// encodings, an LSP 3.17 field the typed protocol structs predate.
type initializeCapabilities struct {
	Capabilities struct {
		General struct {
			PositionEncodings []string `json:"positionEncodings"`
		} `json:"general"`
	} `json:"capabilities"`
}

// Dispatch dispatches the given JSONRPC request to the appropriate server
// function. Notifications are acknowledged with an empty reply; unknown
// methods fall through to the jsonrpc2 method-not-found handler.
func (d *Dispatcher) Dispatch(ctx context.Context, server Server, reply jsonrpc2.Replier, r jsonrpc2.Request) error { // nolint:gocyclo
	switch r.Method() {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseInitializeParameters)
			return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.ParseError, "%s: %v", errParseInitializeParameters, err))
		}
		var caps initializeCapabilities
		// A client that predates 3.17 sends no positionEncodings; an
		// unmarshal failure here is equivalent.
		_ = json.Unmarshal(r.Params(), &caps)
		return reply(ctx, server.Initialize(ctx, &params, caps.Capabilities.General.PositionEncodings), nil)
	case protocol.MethodInitialized:
		server.Initialized(ctx)
		return reply(ctx, nil, nil)
	case protocol.MethodShutdown:
		server.Shutdown(ctx)
		return reply(ctx, nil, nil)
	case protocol.MethodExit:
		return server.Exit(ctx)
	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseOpenParameters)
			return reply(ctx, nil, nil)
		}
		server.DidOpen(ctx, &params)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidChange:
		var params protocol.DidChangeTextDocumentParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseChangeParameters)
			return reply(ctx, nil, nil)
		}
		server.DidChange(ctx, &params)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseCloseParameters)
			return reply(ctx, nil, nil)
		}
		server.DidClose(ctx, &params)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentHover:
		var params protocol.HoverParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseHoverParameters, "error", err)
			return reply(ctx, nil, nil)
		}
		// Hover never surfaces an error to the client; every failure
		// mode is a null result.
		return reply(ctx, server.Hover(ctx, &params), nil)
	case protocol.MethodWorkspaceDidChangeWatchedFiles:
		var params protocol.DidChangeWatchedFilesParams
		if err := json.Unmarshal(r.Params(), &params); err != nil {
			d.log.Debug(errParseWatchedParameters)
			return reply(ctx, nil, nil)
		}
		server.DidChangeWatchedFiles(ctx, &params)
		return reply(ctx, nil, nil)
	}
	return jsonrpc2.MethodNotFoundHandler(ctx, reply, r)
}
