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

package coord

import "go.lsp.dev/protocol"

// Severity mirrors LSP diagnostic severities, restricted to the two levels
// jvl actually emits.
type Severity int

const (
	// SeverityError marks a diagnostic that fails validation.
	SeverityError Severity = iota
	// SeverityWarning marks an advisory diagnostic.
	SeverityWarning
)

// Location pinpoints a FileDiagnostic within its source text. A nil
// *Location means "attach at file start".
type Location struct {
	Line   int // 1-based
	Column int // 1-based byte column
	Offset int // byte offset
	Length int // byte length
}

// FileDiagnostic is jvl's internal, pre-LSP diagnostic representation shared
// by both the CLI and the LSP server.
type FileDiagnostic struct {
	Code     string
	Message  string
	Severity Severity
	Location *Location
}

const diagnosticSource = "jvl"

// ToLSP converts a FileDiagnostic to an LSP Diagnostic, resolving the byte
// range against text/lineStarts under the negotiated encoding. Offsets are
// clamped to the document's byte length.
func ToLSP(d FileDiagnostic, text []byte, ls LineStarts, enc Encoding) protocol.Diagnostic {
	sev := protocol.DiagnosticSeverityError
	if d.Severity == SeverityWarning {
		sev = protocol.DiagnosticSeverityWarning
	}

	rng := protocol.Range{}
	if d.Location != nil {
		start := clamp(d.Location.Offset, len(text))
		end := clamp(d.Location.Offset+d.Location.Length, len(text))
		if end < start {
			end = start
		}
		rng = protocol.Range{
			Start: Position(text, ls, start, enc),
			End:   Position(text, ls, end, enc),
		}
	}

	return protocol.Diagnostic{
		Range:    rng,
		Severity: sev,
		Code:     d.Code,
		Source:   diagnosticSource,
		Message:  d.Message,
	}
}

func clamp(offset, max int) int {
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}
