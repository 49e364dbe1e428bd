// Package cache is the per-module result cache that sits between a generator
// and the generation service.
//
// Results are addressed by KeyFrom over the query components and stored in one
// capacity-bounded SQLite file per module. Fetch implements get-or-compute:
// a stored value is returned only when it decodes under the caller's codec and
// carries the codec's schema version; anything else is regenerated and
// overwritten. Storage failures are logged and never reach the caller.
//
// A store is owned by the session that opened it. Concurrent writers from
// separate processes against the same file are not supported.
package cache
