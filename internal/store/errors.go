// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import "errors"

// Sentinel errors for catalog and vector store operations, checked with
// errors.Is by the service layer before mapping to API error codes.
var (
	// ErrNotFound indicates the requested item or vector record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique-constraint violation, for example a
	// duplicate chunk id on insert.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates malformed parameters, such as an unknown pool
	// or a vector whose dimensions don't match the store schema.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDatabase is the catch-all for unexpected SQLite failures.
	ErrDatabase = errors.New("database error")
)
