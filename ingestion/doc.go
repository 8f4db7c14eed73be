// Package ingestion reconciles batches of user profile records against the
// stored profile collection.
//
// A run reads a CSV or JSON batch and a snapshot of the store, then:
//   - drops records whose cookie is already stored
//   - classifies each distinct interest once, concurrently, on a worker pool
//   - inserts identities the store has not seen yet
//   - merges records into the stored profiles that share their email
//
// Classification failures are retried when configured, then degrade to the
// unknown cohort; they never fail a batch. Writes are batched and may partially succeed; the returned
// core.BatchReport lists every outcome. Re-running a batch is safe.
package ingestion
