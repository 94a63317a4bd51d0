// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/kbingest/core"
)

// boundary matchers, highest priority first. Each reports whether a chunk may
// end right after byte j of s. Only ASCII bytes are inspected, so a match never
// falls inside a multi-byte sequence.
var boundaries = []func(s string, j int) bool{
	// paragraph break
	func(s string, j int) bool { return s[j] == '\n' && j > 0 && s[j-1] == '\n' },
	// sentence end followed by whitespace
	func(s string, j int) bool { return isSpace(s[j]) && j > 0 && strings.IndexByte(".!?", s[j-1]) >= 0 },
	// clause punctuation followed by whitespace
	func(s string, j int) bool { return isSpace(s[j]) && j > 0 && strings.IndexByte(",;:", s[j-1]) >= 0 },
	// newline
	func(s string, j int) bool { return s[j] == '\n' },
	// any whitespace
	func(s string, j int) bool { return isSpace(s[j]) },
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Split cuts text into trimmed pieces according to tier. Text no longer than
// the tier's MinSize comes back as a single piece. Consecutive pieces share up
// to Overlap bytes of context. Empty pieces are never returned.
func Split(text string, tier Tier) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= tier.MinSize {
		return []string{strings.TrimSpace(text)}
	}

	var pieces []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			pieces = append(pieces, s)
		}
	}

	cursor := 0
	for cursor < len(text) {
		if len(text)-cursor <= tier.TargetSize {
			emit(text[cursor:])
			break
		}

		end := findBoundary(text, cursor, tier)
		emit(text[cursor:end])
		cursor = nextCursor(text, cursor, end, tier)
	}
	return pieces
}

// findBoundary returns the exclusive end of the piece starting at cursor.
func findBoundary(text string, cursor int, tier Tier) int {
	lo := cursor + tier.MinSize
	hi := cursor + tier.TargetSize

	for _, match := range boundaries {
		if b := scanBack(text, lo, hi, match); b > 0 {
			return b
		}
	}

	// Nothing in the window. Take the nearest whitespace before it so no word
	// is split, and only cut hard when the whole span is a single token.
	if b := scanBack(text, cursor+1, lo, isSpaceAt); b > 0 {
		return b
	}
	cut := hi
	for cut > cursor+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

func isSpaceAt(s string, j int) bool { return isSpace(s[j]) }

// scanBack looks for the last j in [lo, hi) satisfying match and returns j+1,
// or -1 when there is none.
func scanBack(s string, lo, hi int, match func(string, int) bool) int {
	for j := hi - 1; j >= lo; j-- {
		if match(s, j) {
			return j + 1
		}
	}
	return -1
}

// nextCursor places the next piece's start overlap bytes before end, never
// before cursor+MinSize and never past end. A start that lands inside the
// overlap is moved to the following word.
func nextCursor(text string, cursor, end int, tier Tier) int {
	next := end - tier.Overlap
	if next < cursor+tier.MinSize {
		next = cursor + tier.MinSize
	}
	if next >= end {
		return end
	}
	if i := strings.IndexFunc(text[next:end], func(r rune) bool { return r < utf8.RuneSelf && isSpace(byte(r)) }); i >= 0 {
		return next + i + 1
	}
	for next < end && !utf8.RuneStart(text[next]) {
		next++
	}
	return next
}

// WithFallback splits text with each tier of ladder in turn and hands the
// pieces to try. A try error matching ErrChunkRejected moves on to the next,
// smaller tier; any other error is returned as is. The tier whose pieces were
// accepted is returned on success. When every tier is rejected the result
// wraps core.ErrChunkingExhausted.
func WithFallback(ladder Ladder, text string, try func(Tier, []string) error) (Tier, error) {
	if len(ladder) == 0 {
		return Tier{}, fmt.Errorf("%w: %w", core.ErrChunkingExhausted, ErrEmptyLadder)
	}

	var lastErr error
	for _, tier := range ladder {
		pieces := Split(text, tier)
		if len(pieces) == 0 {
			return tier, core.ErrNoChunks
		}

		err := try(tier, pieces)
		if err == nil {
			return tier, nil
		}
		if !errors.Is(err, ErrChunkRejected) {
			return tier, err
		}
		lastErr = err
	}
	return Tier{}, fmt.Errorf("%w after %d tiers: %w", core.ErrChunkingExhausted, len(ladder), lastErr)
}
