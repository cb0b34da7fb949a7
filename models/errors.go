package models

import "fmt"

// Domain errors carry their payload as data so callers can match on the
// type and read the offending id instead of parsing messages.

// SessionNotFoundError is returned when no session exists for the id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// ItemNotFoundError is returned when a remove/update targets an item that
// is absent from the current projection.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found in cart", e.ItemID)
}

// InvalidQuantityError is returned when a quantity is zero or negative.
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

// InvalidRequestError is returned when a request fails semantic validation
// other than quantity (e.g. missing item id, negative unit price).
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// EmptyCartError is returned by checkout when the projection has no items.
type EmptyCartError struct {
	SessionID string
}

func (e *EmptyCartError) Error() string {
	return fmt.Sprintf("cart for session %s is empty", e.SessionID)
}

// SessionCompletedError is returned when a mutation targets a session that
// has already checked out. Completed sessions admit only reads.
type SessionCompletedError struct {
	SessionID string
}

func (e *SessionCompletedError) Error() string {
	return fmt.Sprintf("session %s is already completed", e.SessionID)
}
