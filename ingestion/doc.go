// Package ingestion builds and publishes the searchable generation of each
// tenant.
//
// The Coordinator owns at most one run per tenant. A run:
//   - Lists the tenant's documents in upload order
//   - Extracts content units from each document concurrently
//   - Chunks the merged units and embeds the chunks in batches
//   - Builds a new vector index, persists the artifacts and swaps the
//     generation in for readers
//
// Scheduling a tenant that is already running only marks it for another run,
// which starts as soon as the current one finishes. Runs for different
// tenants proceed in parallel on a worker pool. A document that cannot be
// extracted is recorded and skipped; embedding or index failures fail the
// whole run and leave the previous generation in place.
package ingestion
