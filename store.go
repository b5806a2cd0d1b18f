package anchoring

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence layer of an anchoring service.
// It holds, per anchor identifier, the chain of accepted records.
type Store interface {
	// Versions returns the chain for the given anchor identifier, oldest first.
	// An unknown identifier yields an empty chain and no error.
	Versions(context.Context, string) (Chain, error)

	// Append adds a record to the chain for the given anchor identifier.
	// The record is accepted only if its Last pointer is the current head
	// (or both are absent).
	// Otherwise Append returns an error wrapping ErrConflict and changes nothing.
	Append(context.Context, string, Record) error

	// ListAnchors calls a function for each anchor identifier in the store
	// in lexicographic order,
	// beginning with the first identifier _after_ the specified one.
	// If the callback function returns an error,
	// ListAnchors exits with that error.
	ListAnchors(context.Context, string, func(string) error) error
}

// Locator resolves a network domain to the base endpoints
// of the anchoring services serving it.
type Locator interface {
	Locate(ctx context.Context, domain string) ([]string, error)
}

// Bypass is a same-process substitute for the anchoring services,
// used for the fast-path domain when a cache mode is configured.
// It is authoritative and single-writer,
// so it has no conflict contract.
type Bypass interface {
	ReadVersions(ctx context.Context, id string) (Chain, error)
	WriteVersion(ctx context.Context, id string, p Pointer) ([]byte, error)
}

// Anchorer is the client side of the anchoring protocol.
type Anchorer interface {
	// Versions resolves the version chain for a key.
	Versions(context.Context, Key) (Chain, error)

	// AddVersion makes rec.New the head of the chain for a key.
	// It returns the confirmation body of the accepting service.
	AddVersion(context.Context, Key, Record) ([]byte, error)
}

var (
	// ErrConflict is the error produced when a write names a previous pointer
	// that is not the current head.
	ErrConflict = errors.New("versions out of sync")

	// ErrNoService is the error produced when no anchoring service
	// is located for a domain.
	ErrNoService = errors.New("no anchoring service provided")
)

// StatusError is the error produced when an anchoring service
// responds with an unexpected HTTP status.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Code, e.Body)
}
