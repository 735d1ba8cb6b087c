// Package memory unifies Nova's conversational memory behind one write/read
// contract.
//
// Backends:
//   - DurableStore: relational source of truth (SQLite)
//   - SemanticIndex: similarity index derived from the store (chromem-go)
//   - Cache: advisory TTL cache (ristretto or redis)
//   - AuditLog: append-only JSONL trail of writes and searches
//
// The Unifier fans every write out to all four backends. Only a DurableStore
// failure fails the write; the other three are best-effort and are logged and
// counted when they fail. The index can always be rebuilt from the store with
// RebuildSemanticIndex, and Initialize does so when the index is empty while
// the store is not.
//
// Search merges substring matches from the store, nearest neighbours from the
// index and recent turns of the current conversation into one ranked list.
package memory
