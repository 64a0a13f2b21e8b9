// Package reembed migrates tenants to a new embedding model.
//
// A tenant's published index is tied to the model that produced its vectors.
// After the configured embedder changes, queries against such a tenant fail
// as not indexed until it is rebuilt. The Reembedder finds those tenants,
// schedules a full rebuild for each through the ingestion coordinator and
// reports progress while the rebuilds complete.
package reembed
