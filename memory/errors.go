package memory

import "errors"

var (
	// ErrDurableStore wraps DurableStore failures. It is the only backend
	// error the Unifier propagates.
	ErrDurableStore = errors.New("durable store")

	// ErrSemanticIndex, ErrCache and ErrAudit wrap best-effort backend
	// failures. They are logged, never returned from a write.
	ErrSemanticIndex = errors.New("semantic index")
	ErrCache         = errors.New("cache")
	ErrAudit         = errors.New("audit log")

	// ErrNotFound is returned by LatestFact when no fact matches.
	ErrNotFound = errors.New("not found")
)
