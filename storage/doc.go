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


// Package storage defines the persistence contracts of querysafe.
//
// Every repository method takes an explicit core.TenantID; nothing derives
// tenancy from file name prefixes.
//
// # Architecture
//
//   - DocumentRepository: uploaded document metadata, in upload order
//   - TenantRepository: durable tenant status and published generation metadata
//   - ConversationRepository: conversations and their messages
//   - BlobStore: raw uploaded bytes
//   - ArtifactStore: the per-tenant chunk and index artifacts
//
// Metadata repositories are implemented on BadgerDB (package storage/badger).
// Blobs and artifacts live on the filesystem (package storage/disk) because the
// artifact layout, one chunk file and one index file per tenant, is part of the
// external contract.
//
// # Concurrency
//
// Implementations are safe for concurrent use. Ingestion runs for different
// tenants write through the same repositories while chat requests read.
package storage
