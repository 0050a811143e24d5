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

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/sargunv/jvl/internal/config"
	"github.com/sargunv/jvl/internal/coord"
	"github.com/sargunv/jvl/internal/jsonc"
	"github.com/sargunv/jvl/internal/schema"
)

// Hover handles calls to Hover by resolving the cursor position to a JSON
// pointer and looking up that pointer's title/description in the document's
// schema. The work is trivial, so it runs inline rather than on a worker.
// Every failure mode is a null result, never an error to the client.
func (s *Server) Hover(ctx context.Context, params *protocol.HoverParams) *protocol.Hover {
	u := params.TextDocument.URI
	if !isFileURI(u) {
		s.logUnsupportedScheme(ctx, u)
		return nil
	}

	doc, ok := s.docs.Get(u)
	if !ok {
		return nil
	}

	root, err := jsonc.Parse(doc.Text)
	if err != nil {
		return nil
	}

	ls := coord.ComputeLineStarts(doc.Text)
	offset := coord.OffsetFromPosition(doc.Text, ls, params.Position, s.encoding)

	ptr, start, end, ok := jsonc.OffsetToPointer(root, offset)
	if !ok {
		return nil
	}

	resolved, err := config.Resolve(s.configs, uri.URI(u).Filename())
	if err != nil || resolved.Source == nil {
		return nil
	}

	slot := s.schemas.GetOrCompile(ctx, *resolved.Source, false)
	if slot.Err != nil {
		return nil
	}

	content, ok := schema.Annotate(slot.Raw, ptr)
	if !ok {
		return nil
	}

	rng := protocol.Range{
		Start: coord.Position(doc.Text, ls, start, s.encoding),
		End:   coord.Position(doc.Text, ls, end, s.encoding),
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: content,
		},
		Range: &rng,
	}
}
