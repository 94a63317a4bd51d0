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

package core

import (
	"fmt"
	"unicode/utf8"
)

// ValidateBody checks that a raw document body is usable text.
//
// Validation rules:
//   - Body must be valid UTF-8
//   - Body must not be empty once normalized
func ValidateBody(body string) error {
	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrInvalidEncoding)
	}
	if Normalize(body) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyContent)
	}
	return nil
}

// ValidateSourceType validates that a SourceType has a known value.
func ValidateSourceType(st SourceType) error {
	switch st {
	case SourceTypeScraper, SourceTypeAPI, SourceTypeManualUpload:
		return nil
	}
	return fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrInvalidSourceType, st)
}

// ValidateStatus validates that a DocumentStatus has a known value.
func ValidateStatus(status DocumentStatus) error {
	switch status {
	case StatusIndexed, StatusOrphaned, StatusFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateDocument validates a Document before it is persisted.
//
// NOT validated (populated by the repository):
//   - ID (generated when empty)
//   - CreatedAt / UpdatedAt
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidInput)
	}
	if doc.ContentHash == "" {
		return fmt.Errorf("%w: content hash is empty", ErrInvalidInput)
	}
	if err := ValidateSourceType(doc.SourceType); err != nil {
		return err
	}
	return ValidateStatus(doc.Status)
}
