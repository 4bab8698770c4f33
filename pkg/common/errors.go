package common

import "errors"

var (
	// ErrMalformedRecord marks a raw record that cannot be normalized at all
	// (no award number). The record is dropped; ingestion continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownNode is returned when a graph operation references a node id
	// that does not exist and is not an alias.
	ErrUnknownNode = errors.New("unknown node")

	// ErrIdentityConflict is returned when a merge is requested with the
	// same node as survivor and duplicate.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrUnsupportedIntent is returned for intent kinds the planner has no
	// template for.
	ErrUnsupportedIntent = errors.New("unsupported intent")

	// ErrInvalidIntentParameters is returned when a required intent
	// parameter is missing or has the wrong type.
	ErrInvalidIntentParameters = errors.New("invalid intent parameters")

	// ErrFetchExhausted is internal to the orchestrator: an external fetch
	// failed its whole retry budget. It is converted to a degraded step,
	// never surfaced to callers.
	ErrFetchExhausted = errors.New("external fetch exhausted")
)
