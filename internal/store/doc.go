// Package store provides SQLite-backed durable storage for the
// evidence and compliance tables.
//
// The store owns the on-disk representation only: rule set rows,
// evidence entry rows, and the schema migration record. Business
// invariants (hashing, signing, TTL filtering) are enforced by the
// crc and evidence packages on top of it.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: synchronous-durable writes by default;
//     Options.RelaxedDurability opts into NORMAL for throughput
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - single writer connection: avoids SQLITE_BUSY under concurrency
//
// Cross-table references (evidence crc_id, entry predecessors) are
// soft: no SQL foreign keys, so rule rows stay deletable while
// evidence cites them. The evidence package's hash verification owns
// linkage integrity.
//
// # Migrations
//
// Schema versions are recorded in schema_migrations together with the
// SHA-256 checksum of each migration's SQL text. On startup pending
// migrations run in order, each preceded by a backup and a checksum
// verification, each inside its own transaction. Migration is
// forward-only: a database reporting a newer version than the binary
// knows is refused rather than downgraded.
package store
