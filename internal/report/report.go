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

// Package report renders validation diagnostics for the terminal: a
// per-diagnostic header, the offending source line, and a caret underline
// beneath the failing span.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/sargunv/jvl/internal/coord"
)

// FileReport pairs a validated file with its diagnostics.
type FileReport struct {
	Path        string
	Source      []byte
	Diagnostics []coord.FileDiagnostic
}

// HasErrors reports whether any diagnostic in the report is an error.
func (r FileReport) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == coord.SeverityError {
			return true
		}
	}
	return false
}

// Render writes a human-readable report for every file to w.
func Render(w io.Writer, reports []FileReport) {
	files, errs, warns := 0, 0, 0
	for _, r := range reports {
		files++
		for _, d := range r.Diagnostics {
			renderDiagnostic(w, r, d)
			if d.Severity == coord.SeverityError {
				errs++
			} else {
				warns++
			}
		}
	}

	switch {
	case errs == 0 && warns == 0:
		fmt.Fprintf(w, "%s %d file(s) valid\n", pterm.FgGreen.Sprint("✓"), files)
	default:
		fmt.Fprintf(w, "%s %d error(s), %d warning(s) in %d file(s)\n",
			pterm.FgRed.Sprint("✗"), errs, warns, files)
	}
}

func renderDiagnostic(w io.Writer, r FileReport, d coord.FileDiagnostic) {
	label := pterm.FgRed.Sprint("error")
	if d.Severity == coord.SeverityWarning {
		label = pterm.FgYellow.Sprint("warning")
	}

	line, col := 1, 1
	if d.Location != nil {
		line, col = d.Location.Line, d.Location.Column
		if line == 0 {
			ls := coord.ComputeLineStarts(r.Source)
			line, col = ls.OffsetToLineCol(d.Location.Offset)
		}
	}

	fmt.Fprintf(w, "%s[%s]: %s\n", label, pterm.Bold.Sprint(d.Code), d.Message)
	fmt.Fprintf(w, "  %s %s:%d:%d\n", pterm.FgGray.Sprint("-->"), r.Path, line, col)

	if d.Location != nil {
		renderSnippet(w, r.Source, line, col, d.Location.Length)
	}
	fmt.Fprintln(w)
}

// renderSnippet prints the offending source line with a caret underline
// spanning the diagnostic's length, clamped to the line end.
func renderSnippet(w io.Writer, source []byte, line, col, length int) {
	ls := coord.ComputeLineStarts(source)
	text := ls.LineText(source, line)
	if text == "" && col == 1 && length == 0 {
		return
	}

	gutter := fmt.Sprintf("%4d", line)
	fmt.Fprintf(w, "%s | %s\n", pterm.FgGray.Sprint(gutter), text)

	span := length
	if span < 1 {
		span = 1
	}
	if col-1+span > len(text) {
		span = len(text) - col + 1
		if span < 1 {
			span = 1
		}
	}
	underline := strings.Repeat(" ", col-1) + strings.Repeat("^", span)
	fmt.Fprintf(w, "%s | %s\n", pterm.FgGray.Sprint("    "), pterm.FgRed.Sprint(underline))
}

// jsonDiagnostic is the machine-readable shape of one diagnostic.
type jsonDiagnostic struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	Length   int    `json:"length,omitempty"`
}

type jsonReport struct {
	Path        string           `json:"path"`
	Diagnostics []jsonDiagnostic `json:"diagnostics"`
}

// RenderJSON writes the reports as a JSON array for scripted consumers.
func RenderJSON(w io.Writer, reports []FileReport) error {
	out := make([]jsonReport, 0, len(reports))
	for _, r := range reports {
		jr := jsonReport{Path: r.Path, Diagnostics: make([]jsonDiagnostic, 0, len(r.Diagnostics))}
		for _, d := range r.Diagnostics {
			jd := jsonDiagnostic{Code: d.Code, Message: d.Message, Severity: "error"}
			if d.Severity == coord.SeverityWarning {
				jd.Severity = "warning"
			}
			if d.Location != nil {
				jd.Line = d.Location.Line
				jd.Column = d.Location.Column
				jd.Offset = d.Location.Offset
				jd.Length = d.Location.Length
			}
			jr.Diagnostics = append(jr.Diagnostics, jd)
		}
		out = append(out, jr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
