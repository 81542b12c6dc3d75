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


// Package storage provides the persistence abstractions for Lectern.
//
// Passages live in two places. The VectorIndex holds one vector per
// (document, passage) pair for similarity search, and the RelationalStore
// holds passage text, metadata and document state. DualStore writes both
// halves in order (index first) and hydrates search hits from the
// relational side.
//
// # Backends
//
//   - storage/badger: embedded vector index and settled-URL ledger
//   - storage/sqlite: embedded relational store
//   - storage/postgres: pgx relational store and pgvector index
//   - storage/milvus: Milvus vector index
//
// Any index pairs with any relational store.
//
// # Identifiers
//
// Passage ids are derived from passage text (core.IDFromContent), so
// re-ingesting identical text overwrites rather than duplicates. The
// relational row of a passage shared by several documents records the
// last writer; index entries stay per document so filtered searches
// still find it.
//
// # Usage
//
//	backend, err := badger.OpenBackend(dir, false)
//	index, err := badger.NewVectorIndex(backend)
//	rel, err := sqlite.Open(ctx, dbPath)
//	store, err := storage.NewDualStore(index, rel)
//	report, err := store.Store(ctx, passages, vectors)
package storage
