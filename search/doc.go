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


// Package search answers free-text queries over the knowledge base.
//
// The Searcher runs a nearest-neighbour query against the vector index and
// joins every hit with the document it was chunked from. Hits are returned
// nearest first. A hit whose document row no longer exists keeps a nil
// Document rather than being dropped, which makes drift between the two
// stores visible to callers.
//
// Each result also reports whether the chunk contains every significant word
// of the query, ignoring stop words.
package search
