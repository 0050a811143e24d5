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

package main

import (
	"context"

	"go.lsp.dev/jsonrpc2"

	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/sargunv/jvl/internal/xpls/dispatcher"
	"github.com/sargunv/jvl/internal/xpls/server"
)

type lspCmd struct{}

// Run starts the language server on stdin/stdout and blocks until the
// client disconnects.
func (c lspCmd) Run(log logging.Logger) error {
	s, err := server.New(server.WithLogger(log))
	if err != nil {
		return err
	}
	d := dispatcher.New(dispatcher.WithLogger(log))

	return s.Run(context.Background(), func(ctx context.Context, reply jsonrpc2.Replier, r jsonrpc2.Request) error {
		return d.Dispatch(ctx, s, reply, r)
	})
}
