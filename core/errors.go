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

import "errors"

// Domain errors
var (
	// ErrInvalidInput indicates an empty or malformed document body or field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyContent indicates the body is empty after normalization.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidEncoding indicates the body is not valid UTF-8 text.
	ErrInvalidEncoding = errors.New("content is not valid UTF-8 text")

	// ErrInvalidSourceType indicates an unknown SourceType value.
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrInvalidStatus indicates an unknown DocumentStatus value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrChunkingExhausted indicates every chunking tier was rejected.
	// It is permanent: no chunk size produced usable output.
	ErrChunkingExhausted = errors.New("chunking exhausted: no tier produced acceptable chunks")

	// ErrNoChunks indicates chunking produced nothing to index.
	ErrNoChunks = errors.New("chunking produced no chunks")
)
