// Package services defines the business logic for WhatsApp group preferences
// and property listing search. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrMissingUserID is returned when an operation is attempted without a
	// tenant identifier.
	ErrMissingUserID = errors.New("user id is required")

	// ErrInvalidListingType is returned when a listing search filters on a
	// type outside the allowed set (sale, rental, lease).
	ErrInvalidListingType = errors.New("listing type must be sale, rental, or lease")

	// ErrEmptyGroupID is returned when a group preference update names no
	// group identifier.
	ErrEmptyGroupID = errors.New("group id is required")
)
