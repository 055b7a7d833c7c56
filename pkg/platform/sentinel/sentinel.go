package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, the identity provider adapters and
// the pending-signup cache return these (optionally wrapped) so services can translate
// them into domain errors or, for absence, into a valid state.
//
// - ErrNotFound: record does not exist in the store or provider
// - ErrConflict: unique constraint (roll number, id) already taken
// - ErrExpired: confirmation window has elapsed
// - ErrInvalidState: record in wrong shape or state for the requested operation
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
