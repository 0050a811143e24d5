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
	"fmt"
	"unicode/utf8"
)

const maxAnnotationBytes = 10000

// Annotate walks raw (a decoded JSON Schema document) following pointer,
// descending through properties/prefixItems/items and resolving fragment-only
// $ref, to produce hover content for the node pointer addresses. It returns
// "", false when no title/description is available or the walk dead-ends.
//
// Any $ref not starting with "#" is rejected outright: this is a security
// boundary, not a convenience cutoff, so no fallback path may be added for
// external refs.
func Annotate(raw any, pointer []string) (string, bool) {
	node, ok := descend(raw, raw, pointer, map[string]bool{})
	if !ok {
		return "", false
	}
	return renderAnnotation(node)
}

func descend(root, node any, pointer []string, visited map[string]bool) (any, bool) {
	node, ok := followRef(root, node, visited)
	if !ok {
		return nil, false
	}

	if len(pointer) == 0 {
		return node, true
	}

	obj, isObj := node.(map[string]any)
	if !isObj {
		return nil, false
	}

	seg := pointer[0]
	if isArrayIndex(seg) {
		idx := parseIndex(seg)
		if prefixItems, ok := obj["prefixItems"].([]any); ok && idx >= 0 && idx < len(prefixItems) {
			return descend(root, prefixItems[idx], pointer[1:], visited)
		}
		if items, ok := obj["items"]; ok {
			return descend(root, items, pointer[1:], visited)
		}
		return nil, false
	}

	props, ok := obj["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	child, ok := props[seg]
	if !ok {
		return nil, false
	}
	return descend(root, child, pointer[1:], visited)
}

// followRef resolves a fragment-only $ref chain at node, enforcing the
// "#"-prefix-only policy and cycle detection via visited fragment strings.
func followRef(root, node any, visited map[string]bool) (any, bool) {
	for {
		obj, ok := node.(map[string]any)
		if !ok {
			return node, true
		}
		ref, hasRef := obj["$ref"].(string)
		if !hasRef {
			return node, true
		}
		if len(ref) == 0 || ref[0] != '#' {
			// Any $ref not starting with "#" is rejected: no network, no
			// cross-document file reads during hover.
			return nil, false
		}
		if visited[ref] {
			return nil, false
		}
		visited[ref] = true

		target, ok := resolveJSONPointer(root, ref[1:])
		if !ok {
			return nil, false
		}
		node = target
	}
}

func resolveJSONPointer(root any, fragment string) (any, bool) {
	fragment = trimLeadingSlash(fragment)
	if fragment == "" {
		return root, true
	}
	node := root
	for _, seg := range splitPointer(fragment) {
		switch n := node.(type) {
		case map[string]any:
			child, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			idx := parseIndex(seg)
			if idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func splitPointer(s string) []string {
	if s == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			segs = append(segs, unescapeSeg(s[start:i]))
			start = i + 1
		}
	}
	segs = append(segs, unescapeSeg(s[start:]))
	return segs
}

func unescapeSeg(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '~' && i+1 < len(s) {
			switch s[i+1] {
			case '1':
				out = append(out, '/')
				i++
				continue
			case '0':
				out = append(out, '~')
				i++
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func isArrayIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseIndex(seg string) int {
	n := 0
	for _, r := range seg {
		n = n*10 + int(r-'0')
	}
	return n
}

func renderAnnotation(node any) (string, bool) {
	obj, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	title, _ := obj["title"].(string)
	desc, _ := obj["description"].(string)
	title = truncateUTF8(title, maxAnnotationBytes)
	desc = truncateUTF8(desc, maxAnnotationBytes)

	switch {
	case title != "" && desc != "":
		return fmt.Sprintf("**%s**\n\n%s", title, desc), true
	case title != "":
		return fmt.Sprintf("**%s**", title), true
	case desc != "":
		return desc, true
	default:
		return "", false
	}
}

// truncateUTF8 truncates s to at most maxBytes bytes on a UTF-8 rune
// boundary, appending an ellipsis when truncation occurred.
func truncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
