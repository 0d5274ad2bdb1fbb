// Package ledger appends feedback records to a named, append-only table.
//
// Invariants:
// - Rows are written in the fixed column order time, user, content.
// - Timestamps are rendered as "2006-01-02 15:04:05" in one fixed time zone.
// - Append never retries, buffers or deduplicates; a failed append returns *WriteError.
// - The table is located (or created with its header) once at startup by Bootstrap.
//
// Usage:
//
//	store := ledger.NewMemoryStore()
//	table, _ := ledger.Bootstrap(ctx, store, "feedback", logger)
//	w := ledger.NewWriter(store, table, ledger.WriterOptions{})
//	_ = w.Append(ctx, ledger.Record{Timestamp: time.Now(), Username: "alice", Content: "hi"})
package ledger
