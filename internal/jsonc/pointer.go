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

package jsonc

import (
	"strconv"
	"strings"
)

// Pointer is a JSON pointer (RFC 6901) as a sequence of unescaped segments.
type Pointer []string

// OffsetToPointer walks root to find the node containing offset and returns
// the JSON pointer addressing it together with its byte range. Offsets
// inside structural tokens or whitespace between nodes return ok=false, as
// do offsets outside the root's range.
func OffsetToPointer(root *Node, offset int) (ptr Pointer, start, end int, ok bool) {
	if root == nil || offset < root.Start || offset >= root.End {
		return nil, 0, 0, false
	}
	return walk(root, offset, nil)
}

func walk(n *Node, offset int, prefix Pointer) (Pointer, int, int, bool) {
	switch n.Kind {
	case KindObject:
		for _, m := range n.Members {
			if offset >= m.KeyStart && offset < m.KeyEnd {
				return append(prefix, m.Key), m.KeyStart, m.KeyEnd, true
			}
			if m.Value != nil && offset >= m.Value.Start && offset < m.Value.End {
				return walk(m.Value, offset, append(prefix, m.Key))
			}
		}
		return nil, 0, 0, false
	case KindArray:
		for i, el := range n.Elements {
			if offset >= el.Start && offset < el.End {
				return walk(el, offset, append(prefix, strconv.Itoa(i)))
			}
		}
		return nil, 0, 0, false
	default:
		return prefix, n.Start, n.End, true
	}
}

// Resolve looks up the node addressed by ptr within root, returning its
// value range. Used to convert a JSON Schema validation error's instance
// pointer into a byte range for a FileDiagnostic.
func Resolve(root *Node, ptr Pointer) (*Node, bool) {
	n := root
	for _, seg := range ptr {
		switch n.Kind {
		case KindObject:
			found := false
			for _, m := range n.Members {
				if m.Key == seg {
					n = m.Value
					found = true
					break
				}
			}
			if !found {
				return nil, false
			}
		case KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n.Elements) {
				return nil, false
			}
			n = n.Elements[idx]
		default:
			return nil, false
		}
	}
	return n, true
}

// KeyRange returns the byte range of the object key naming the last segment
// of ptr, when ptr addresses an object member and not the root. Used to
// narrow schema-load/compile diagnostics to the $schema key when available.
func KeyRange(root *Node, ptr Pointer) (start, end int, ok bool) {
	if len(ptr) == 0 {
		return 0, 0, false
	}
	parent, ok := Resolve(root, ptr[:len(ptr)-1])
	if !ok || parent.Kind != KindObject {
		return 0, 0, false
	}
	last := ptr[len(ptr)-1]
	for _, m := range parent.Members {
		if m.Key == last {
			return m.KeyStart, m.KeyEnd, true
		}
	}
	return 0, 0, false
}

// ParsePointerString splits a JSON Pointer wire string ("/a/b~1c~0d") into
// unescaped segments per RFC 6901.
func ParsePointerString(s string) Pointer {
	if s == "" || s == "/" {
		return nil
	}
	s = strings.TrimPrefix(s, "/")
	parts := strings.Split(s, "/")
	ptr := make(Pointer, len(parts))
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		ptr[i] = p
	}
	return ptr
}
