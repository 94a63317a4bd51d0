package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-crypt/x/blake2b"
)

// HashSize is the fingerprint digest size in bytes.
const HashSize = blake2b.Size256

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize canonicalizes text for fingerprinting: CRLF and lone CR become LF,
// and leading/trailing whitespace is removed.
func Normalize(text string) string {
	return strings.TrimSpace(lineEndings.Replace(text))
}

// Hash returns the hex BLAKE2b-256 digest of the exact bytes of text.
// Empty or non-UTF-8 input is rejected with ErrInvalidInput.
func Hash(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyContent)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidEncoding)
	}
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint hashes the normalized form of text, so bodies differing only in
// line-ending style or surrounding whitespace share a fingerprint.
func Fingerprint(text string) (string, error) {
	return Hash(Normalize(text))
}
