package shared

import "errors"

// Error kinds shared by every engine package. Package errors wrap one of
// these so callers can branch with errors.Is without importing the package
// that raised them.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates an illegal state change.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNegativeStock indicates a posting would drive stock below zero.
	ErrNegativeStock = errors.New("negative stock")
	// ErrIncompletePick indicates a pick list still has short lines.
	ErrIncompletePick = errors.New("incomplete pick")
	// ErrEmptyBatch indicates no eligible work was supplied.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate")
)

// ErrIdempotencyConflict indicates the key was already processed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")
