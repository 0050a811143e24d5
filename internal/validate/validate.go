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

// Package validate is the validation façade: given source text and an
// optional schema source, it parses, resolves, compiles (via the cache),
// validates, and converts the result into internal FileDiagnostics. Both
// jvl check and jvl lsp call through this single entry point.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sargunv/jvl/internal/config"
	"github.com/sargunv/jvl/internal/coord"
	"github.com/sargunv/jvl/internal/jsonc"
	"github.com/sargunv/jvl/internal/schema"
)

// FileResult is the outcome of validating one document.
type FileResult struct {
	Diagnostics []coord.FileDiagnostic
}

// ValidateFile parses sourceText as JSONC and validates it against the
// effective schema. pathDisplay is used both for diagnostics and, when
// schemaSource is nil, to resolve a relative "$schema" field against the
// document's own directory.
func ValidateFile(
	ctx context.Context,
	pathDisplay string,
	sourceText []byte,
	schemaSource *schema.Source,
	cache *schema.Cache,
	noCache bool,
	strict bool,
) FileResult {
	root, err := jsonc.Parse(sourceText)
	if err != nil {
		return FileResult{Diagnostics: []coord.FileDiagnostic{parseDiagnostic(err)}}
	}

	src := schemaSource
	if src == nil {
		src = schemaFromDocument(root, sourceText, pathDisplay)
	}

	if src == nil {
		if !strict {
			return FileResult{}
		}
		return FileResult{Diagnostics: []coord.FileDiagnostic{{
			Code:     "no-schema",
			Message:  "no schema could be resolved for this document",
			Severity: coord.SeverityError,
		}}}
	}

	slot := cache.GetOrCompile(ctx, *src, noCache)
	if slot.Err != nil {
		code := "schema(load)"
		if slot.Stage == schema.StageCompile {
			code = "schema(compile)"
		}
		return FileResult{Diagnostics: []coord.FileDiagnostic{{
			Code:     code,
			Message:  slot.Err.Error(),
			Severity: coord.SeverityError,
			Location: schemaKeyLocation(root, sourceText),
		}}}
	}

	standardized, err := jsonc.Standardize(sourceText)
	if err != nil {
		return FileResult{Diagnostics: []coord.FileDiagnostic{parseDiagnostic(err)}}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(standardized))
	if err != nil {
		return FileResult{Diagnostics: []coord.FileDiagnostic{parseDiagnostic(err)}}
	}

	verr := slot.Validator.Validate(inst)
	if verr == nil {
		return FileResult{}
	}

	failures := schema.ExtractFailures(verr)
	diags := make([]coord.FileDiagnostic, 0, len(failures))
	for _, f := range failures {
		diags = append(diags, failureToDiagnostic(root, f))
	}
	return FileResult{Diagnostics: diags}
}

// schemaFromDocument extracts the document's own "$schema" field and
// resolves it to a schema.Source, relative paths resolving against
// pathDisplay's directory. Returns nil if absent or unusable.
func schemaFromDocument(root *jsonc.Node, sourceText []byte, pathDisplay string) *schema.Source {
	if root == nil || root.Kind != jsonc.KindObject {
		return nil
	}
	node, ok := jsonc.Resolve(root, jsonc.Pointer{"$schema"})
	if !ok || node.Kind != jsonc.KindString {
		return nil
	}
	value := unquoteRaw(node.Raw)
	if value == "" {
		return nil
	}
	var src schema.Source
	if config.IsAbsoluteURL(value) {
		src = schema.NewURLSource(value)
	} else {
		path := value
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(pathDisplay), path)
		}
		src = schema.NewFileSource(path)
	}
	return &src
}

func unquoteRaw(raw string) string {
	if len(raw) < 2 {
		return ""
	}
	var out bytes.Buffer
	for i := 1; i < len(raw)-1; i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw)-1 {
			i++
			switch raw[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			default:
				out.WriteByte(raw[i])
			}
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

func schemaKeyLocation(root *jsonc.Node, sourceText []byte) *coord.Location {
	start, end, ok := jsonc.KeyRange(root, jsonc.Pointer{"$schema"})
	if !ok {
		return nil
	}
	ls := coord.ComputeLineStarts(sourceText)
	line, col := ls.OffsetToLineCol(start)
	return &coord.Location{Line: line, Column: col, Offset: start, Length: end - start}
}

var parseOffsetPattern = regexp.MustCompile(`offset (\d+)`)

// parseDiagnostic builds a "parse" FileDiagnostic from a jsonc/hujson parse
// error. When the error message embeds a byte offset (most of our own
// recursive descent parser's errors do), that offset anchors the diagnostic;
// otherwise it attaches at file start.
func parseDiagnostic(err error) coord.FileDiagnostic {
	d := coord.FileDiagnostic{
		Code:     "parse",
		Message:  err.Error(),
		Severity: coord.SeverityError,
	}
	if m := parseOffsetPattern.FindStringSubmatch(err.Error()); m != nil {
		if offset, convErr := strconv.Atoi(m[1]); convErr == nil {
			d.Location = &coord.Location{Offset: offset, Length: 1}
		}
	}
	return d
}

// failureToDiagnostic resolves a validation failure's instance pointer
// against the AST, preferring a key span when the message names exactly one
// property that is present in the failing object (as for
// additionalProperties), and the value span otherwise. A required failure
// names an absent property, so it gets the span of the enclosing object.
func failureToDiagnostic(root *jsonc.Node, f schema.ValidationFailure) coord.FileDiagnostic {
	d := coord.FileDiagnostic{
		Code:     fmt.Sprintf("schema(%s)", f.Keyword),
		Message:  f.Message,
		Severity: coord.SeverityError,
	}

	node, ok := jsonc.Resolve(root, jsonc.Pointer(f.InstancePointer))
	if !ok {
		return d
	}

	if node.Kind == jsonc.KindObject {
		if key := propertyNameFromMessage(f.Message); key != "" {
			for _, m := range node.Members {
				if m.Key == key {
					d.Location = &coord.Location{Offset: m.KeyStart, Length: m.KeyEnd - m.KeyStart}
					return d
				}
			}
		}
	}

	d.Location = &coord.Location{Offset: node.Start, Length: node.End - node.Start}
	return d
}

var propertyNamePattern = regexp.MustCompile(`'([^']+)'`)

// propertyNameFromMessage extracts a single quoted property name out of a
// jsonschema "missing properties" / "additional properties" style message.
// Returns "" when the message doesn't name exactly one property.
func propertyNameFromMessage(msg string) string {
	matches := propertyNamePattern.FindAllStringSubmatch(msg, -1)
	if len(matches) != 1 {
		return ""
	}
	return matches[0][1]
}
