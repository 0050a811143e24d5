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
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/sargunv/jvl/internal/config"
	"github.com/sargunv/jvl/internal/coord"
	"github.com/sargunv/jvl/internal/validate"
)

const (
	// debounceInterval is how long a validation task sleeps before taking
	// its snapshot, letting a burst of edits settle into one validation.
	debounceInterval = 200 * time.Millisecond
	// maxConcurrentValidations bounds the number of blocking validation
	// bodies running at once.
	maxConcurrentValidations = 8
)

// scheduleValidation spawns an independent debounced validation task for
// uri, cancelling any still-sleeping predecessor. Cancellation only bounds
// task accumulation under rapid typing; correctness rests on the
// publish-time version guard alone.
func (s *Server) scheduleValidation(ctx context.Context, u protocol.DocumentURI) {
	if !isFileURI(u) {
		s.logUnsupportedScheme(ctx, u)
		return
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	s.supersedePending(u, cancel)

	go s.runValidation(taskCtx, cancel, u, uuid.NewString())
}

// supersedePending installs cancel as uri's pending handle, cancelling the
// predecessor if one is still sleeping.
func (s *Server) supersedePending(u protocol.DocumentURI, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[u]; ok {
		prev()
	}
	s.pending[u] = cancel
}

// cancelPending cancels and forgets uri's pending validation, if any.
func (s *Server) cancelPending(u protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.pending[u]; ok {
		prev()
		delete(s.pending, u)
	}
}

func (s *Server) runValidation(ctx context.Context, cancel context.CancelFunc, u protocol.DocumentURI, cycle string) {
	defer cancel()

	select {
	case <-time.After(debounceInterval):
	case <-ctx.Done():
		return
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	// Past this point a superseding edit no longer cancels the task: a
	// cancelled schema fetch would otherwise be cached as a load error.
	ctx = context.WithoutCancel(ctx)

	// Version and text are snapshotted together after the delay; checking a
	// version captured at the change event instead would race the store.
	doc, ok := s.docs.Get(u)
	if !ok {
		return
	}

	diags, ok := s.validateSnapshot(ctx, u, doc, cycle)
	if !ok {
		return
	}

	if !s.docs.MatchesVersion(u, doc.Version) {
		s.log.Debug("discarding stale diagnostics", "uri", u, "version", doc.Version, "cycle", cycle)
		return
	}
	s.publishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         u,
		Version:     uint32(doc.Version),
		Diagnostics: diags,
	})
}

// validateSnapshot is the blocking validation body: config resolution,
// schema compilation, and validation, all of which may touch disk or the
// network. A panic here is contained at this join point; the server keeps
// running and the cycle simply produces no diagnostics.
func (s *Server) validateSnapshot(ctx context.Context, u protocol.DocumentURI, doc Document, cycle string) (diags []protocol.Diagnostic, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Info("validation panicked", "uri", u, "cycle", cycle, "panic", r)
			s.logMessage(ctx, protocol.MessageTypeError, fmt.Sprintf("validation of %s panicked: %v", u, r))
			diags, ok = nil, false
		}
	}()

	path := uri.URI(u).Filename()

	resolved, err := config.Resolve(s.configs, path)
	if err != nil {
		s.reportConfigError(ctx, path, err)
		return nil, false
	}
	if resolved.ConfigErr != nil {
		// The config failed to reload; resolution used the last good one.
		s.reportConfigError(ctx, path, resolved.ConfigErr)
	}
	if resolved.ConfigLog != "" {
		s.logMessage(ctx, protocol.MessageTypeWarning, resolved.ConfigLog)
	}

	result := validate.ValidateFile(ctx, path, doc.Text, resolved.Source, s.schemas, false, resolved.Strict)

	ls := coord.ComputeLineStarts(doc.Text)
	out := make([]protocol.Diagnostic, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		out = append(out, coord.ToLSP(d, doc.Text, ls, s.encoding))
	}
	return out, true
}

// reportConfigError surfaces a jvl.json parse/compile failure through the
// message log and, when the offending config file is itself open in the
// editor, as a diagnostic on that document. The previous good configuration
// stays cached.
func (s *Server) reportConfigError(ctx context.Context, documentPath string, err error) {
	s.log.Debug(errResolveConfig, "path", documentPath, "error", err)
	s.logMessage(ctx, protocol.MessageTypeWarning, errResolveConfig+": "+err.Error())

	configPath, ok := config.Locate(s.fs, filepath.Dir(documentPath))
	if !ok {
		return
	}
	configURI := protocol.DocumentURI(uri.File(configPath))
	doc, open := s.docs.Get(configURI)
	if !open {
		return
	}
	ls := coord.ComputeLineStarts(doc.Text)
	diag := coord.ToLSP(coord.FileDiagnostic{
		Code:     "parse",
		Message:  err.Error(),
		Severity: coord.SeverityError,
	}, doc.Text, ls, s.encoding)
	s.publishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         configURI,
		Version:     uint32(doc.Version),
		Diagnostics: []protocol.Diagnostic{diag},
	})
}
