package backend

import (
	"context"
	"fmt"

	"cart-session-service/models"
)

// ContextService is the ephemeral cart backend. It holds a single mutable
// cart per opaque context handle; a handle silently becomes invalid once
// it sits idle longer than the backend's TTL, and any use of it after that
// fails with ContextExpiredError. Expiry is detected lazily on use, never
// by a timer.
type ContextService interface {
	// CreateContext issues a fresh, empty, valid handle.
	CreateContext(ctx context.Context) (string, error)

	AddItem(ctx context.Context, handle string, item models.CartItem) error
	// RemoveItem removes quantity units of the item; a quantity of zero or
	// less, or one exceeding the line, removes the whole line.
	RemoveItem(ctx context.Context, handle, itemID string, quantity int) error
	UpdateItem(ctx context.Context, handle, itemID string, quantity int) error
	// Checkout places the order held by the handle and returns its id.
	Checkout(ctx context.Context, handle string) (string, error)

	// GetCart returns the handle's own item set. The reconciliation path
	// never uses it; it exists for symmetry and tests.
	GetCart(ctx context.Context, handle string) ([]models.CartItem, error)
}

// ContextExpiredError signals that the handle's idle TTL elapsed and the
// backend discarded its state. The orchestrator absorbs this; it never
// reaches clients.
type ContextExpiredError struct {
	Handle string
}

func (e *ContextExpiredError) Error() string {
	return fmt.Sprintf("backend context %s expired", e.Handle)
}

// ItemNotFoundError signals a remove/update against an item the backend
// does not hold for the handle.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("backend has no item %s", e.ItemID)
}
