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

// Package coord converts between the three coordinate spaces jvl deals in:
// byte offsets, 1-based line/byte-column pairs, and 0-based LSP positions in
// either UTF-8 or UTF-16 units.
package coord

import (
	"sort"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Encoding identifies which code units an LSP character field counts.
type Encoding int

const (
	// UTF8 counts raw bytes, matching the JSONC AST's native ranges.
	UTF8 Encoding = iota
	// UTF16 counts UTF-16 code units, the LSP default.
	UTF16
)

// Wire names for the two position encodings, as they appear in the client's
// general.positionEncodings capability and the server's positionEncoding
// reply.
const (
	UTF8Kind  = "utf-8"
	UTF16Kind = "utf-16"
)

// NegotiateEncoding picks UTF-8 when the client advertises it, falling back
// to UTF-16 (the LSP default position encoding) otherwise.
func NegotiateEncoding(kinds []string) Encoding {
	for _, k := range kinds {
		if k == UTF8Kind {
			return UTF8
		}
	}
	return UTF16
}

// EncodingKind reports the LSP wire name for enc, used in the InitializeResult.
func EncodingKind(enc Encoding) string {
	if enc == UTF8 {
		return UTF8Kind
	}
	return UTF16Kind
}

// LineStarts holds the byte offset of the first byte of each line, enabling
// O(log n) offset -> line/column conversion via binary search.
type LineStarts []int

// ComputeLineStarts scans text once and records where every line begins.
// The first entry is always 0.
func ComputeLineStarts(text []byte) LineStarts {
	starts := make(LineStarts, 1, 64)
	starts[0] = 0
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// OffsetToLineCol converts a byte offset into a 1-based line and 1-based byte
// column. Negative offsets clamp to 0; offsets past the end of the text fall
// on the last line with a column past its end (callers such as Position clamp
// to the text length first).
func (ls LineStarts) OffsetToLineCol(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	// Largest i such that ls[i] <= offset.
	i := sort.Search(len(ls), func(i int) bool { return ls[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, offset - ls[i] + 1
}

// LineColToOffset is the inverse of OffsetToLineCol, given 1-based line/col.
func (ls LineStarts) LineColToOffset(line, col int) int {
	if line < 1 {
		line = 1
	}
	idx := line - 1
	if idx >= len(ls) {
		idx = len(ls) - 1
	}
	return ls[idx] + col - 1
}

// LineText extracts the raw bytes of a line (without its trailing newline)
// given the full document text.
func (ls LineStarts) LineText(text []byte, line int) string {
	idx := line - 1
	if idx < 0 || idx >= len(ls) {
		return ""
	}
	start := ls[idx]
	end := len(text)
	if idx+1 < len(ls) {
		end = ls[idx+1] - 1
	}
	if start > len(text) {
		start = len(text)
	}
	if end > len(text) {
		end = len(text)
	}
	if end < start {
		end = start
	}
	// Strip a trailing \r so CRLF line endings don't leak into hover ranges.
	if end > start && text[end-1] == '\r' {
		end--
	}
	return string(text[start:end])
}

// ByteColToLSP converts a 1-based byte column within lineText into a 0-based
// LSP character offset under the given encoding.
func ByteColToLSP(lineText string, byteCol int, enc Encoding) int {
	if byteCol < 1 {
		return 0
	}
	if byteCol-1 > len(lineText) {
		byteCol = len(lineText) + 1
	}
	prefix := lineText[:byteCol-1]
	if enc == UTF8 {
		return len(prefix)
	}
	return countUTF16Units(prefix)
}

// LSPColToByte is the inverse of ByteColToLSP: given a 0-based LSP character
// offset, return the 1-based byte column. Out-of-range inputs clamp to the
// end of the line.
func LSPColToByte(lineText string, lspChar int, enc Encoding) int {
	if lspChar <= 0 {
		return 1
	}
	if enc == UTF8 {
		if lspChar > len(lineText) {
			return len(lineText) + 1
		}
		return lspChar + 1
	}
	units := 0
	for i, r := range lineText {
		if units >= lspChar {
			return i + 1
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return len(lineText) + 1
}

func countUTF16Units(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Position converts a byte offset directly to an LSP Position under enc.
func Position(text []byte, ls LineStarts, offset int, enc Encoding) protocol.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line, col := ls.OffsetToLineCol(offset)
	lineText := ls.LineText(text, line)
	return protocol.Position{
		Line:      uint32(line - 1),
		Character: uint32(ByteColToLSP(lineText, col, enc)),
	}
}

// OffsetFromPosition is the inverse of Position: an LSP position maps back to
// a byte offset, clamping anything past the end of the document.
func OffsetFromPosition(text []byte, ls LineStarts, pos protocol.Position, enc Encoding) int {
	line := int(pos.Line) + 1
	if line > len(ls) {
		return len(text)
	}
	lineText := ls.LineText(text, line)
	col := LSPColToByte(lineText, int(pos.Character), enc)
	return ls.LineColToOffset(line, col)
}

// ValidUTF8Boundary reports whether offset sits on a UTF-8 rune boundary
// within text, used when truncating strings (e.g. hover descriptions).
func ValidUTF8Boundary(text []byte, offset int) bool {
	if offset <= 0 || offset >= len(text) {
		return true
	}
	return utf8.RuneStart(text[offset])
}
