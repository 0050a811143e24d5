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

package schema

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
)

var messagePrinter = message.NewPrinter(language.English)

const (
	errParseSchema    = "failed to parse schema document"
	errAddResource    = "failed to register schema resource"
	errCompileSchema  = "failed to compile schema"
)

// compile parses raw schema bytes and builds a validator for it, keyed by a
// synthetic resource URL derived from the source identity so that internal
// $ref resolution works without requiring the schema to declare its own $id.
func compile(raw []byte, resourceURL string) (*jsonschema.Schema, any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, errors.Wrap(err, errParseSchema)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, doc); err != nil {
		return nil, nil, errors.Wrap(err, errAddResource)
	}

	validator, err := c.Compile(resourceURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, errCompileSchema)
	}
	return validator, doc, nil
}

// ValidationFailure is one leaf cause extracted from a *jsonschema.ValidationError
// tree, carrying the pieces needed to build a FileDiagnostic: the failing
// instance's JSON pointer segments, the schema keyword that rejected it, and
// a human-readable message.
type ValidationFailure struct {
	InstancePointer []string
	Keyword         string
	Message         string
}

// ExtractFailures flattens a jsonschema validation error into its leaf
// causes. A ValidationError with no further Causes is itself a leaf.
func ExtractFailures(err error) []ValidationFailure {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationFailure{{Message: err.Error()}}
	}
	var out []ValidationFailure
	collectFailures(ve, &out)
	if len(out) == 0 {
		out = append(out, ValidationFailure{Message: err.Error()})
	}
	return out
}

func collectFailures(ve *jsonschema.ValidationError, out *[]ValidationFailure) {
	if len(ve.Causes) == 0 {
		*out = append(*out, ValidationFailure{
			InstancePointer: ve.InstanceLocation,
			Keyword:         lastSegment(ve.ErrorKind.KeywordPath()),
			Message:         ve.ErrorKind.LocalizedString(messagePrinter),
		})
		return
	}
	for _, cause := range ve.Causes {
		collectFailures(cause, out)
	}
}

func lastSegment(path []string) string {
	if len(path) == 0 {
		return "schema"
	}
	return path[len(path)-1]
}
