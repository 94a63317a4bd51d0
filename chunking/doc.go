// Package chunking splits normalized document text into ordered, overlapping
// pieces sized for a vector index.
//
// Split implements a boundary-aware scan that prefers, in order, paragraph
// breaks, sentence ends, clause punctuation, newlines and plain whitespace.
// WithFallback walks a Ladder of progressively smaller tiers whenever the
// index rejects a piece as too large.
package chunking
