// Package anchoring gives content-addressed resources a long-lived identity.
//
// Content addressability has some desirable properties,
// but it does mean that if some data changes,
// so does its hash,
// which can make it tricky to keep track of a piece of data over its lifetime.
// An anchoring service solves that:
// it maps a stable anchor identifier
// to the chain of content hashes
// ("version pointers")
// that the identifier has pointed to,
// oldest first.
//
// A network domain is served by any number of independently operated anchoring services.
// None of them is authoritative.
// The client
// (in the client subpackage)
// sends every request to all of them at once.
// A read returns the chain from the first service to answer successfully.
// A write succeeds if any service accepts it.
//
// Writes use optimistic concurrency.
// Each write names the pointer it supersedes,
// and a service accepts it only if that pointer is its current head.
// Otherwise the write is a conflict,
// reported as ErrConflict.
// Resolving a conflict
// (re-reading the chain and rebasing the new version atop the real head)
// is up to the caller.
//
// This is best-effort replication, not consensus.
// A stale or malicious service that answers first is believed.
package anchoring
