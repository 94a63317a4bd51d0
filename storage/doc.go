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

// Package storage provides the storage abstraction layer for kbingest.
//
// This package defines the DocumentRepository interface that decouples the
// ingestion logic from the store holding document records. Backends live in
// sub-packages:
//
//   - badger: embedded key-value store, the default
//   - sqlite: embedded relational store
//   - postgres: networked relational store
//
// # Constructor Return Type Pattern
//
// Public backend constructors return the storage.DocumentRepository interface:
//
//	repo, err := badger.NewRepository(path)
//
// # Transactions
//
// WithTransaction runs a function inside one store transaction. Repository
// calls made with the context handed to that function join the transaction,
// so a read-check-then-write sequence commits or fails as a unit:
//
//	err := repo.WithTransaction(ctx, func(ctx context.Context) error {
//	    existing, err := repo.FindBySourceURL(ctx, url)
//	    ...
//	    _, err = repo.CreateDocument(ctx, doc)
//	    return err
//	})
//
// A commit that loses to a concurrent writer fails with ErrConflict, and a
// write that would break the one-document-per-hash or one-document-per-URL
// rule fails with ErrDuplicateKey. Callers treat both as a lost race.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
