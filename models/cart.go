package models

import "time"

// CartItem is a projected line in a cart. It is always derived by folding
// the session's event log and is never stored on its own.
type CartItem struct {
	ItemID    string `json:"item_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price_minor_units"`
	Quantity  int    `json:"quantity"`
}

// Cart is the response value returned by every successful cart operation.
// All monetary values are integers in minor currency units.
type Cart struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	Subtotal  int64      `json:"subtotal_minor_units"`
	Tax       int64      `json:"tax_minor_units"`
	Total     int64      `json:"total_minor_units"`
}

// Order is returned by checkout: the backend's order id plus the final
// projection of the session at the moment it completed.
type Order struct {
	OrderID     string    `json:"order_id"`
	Cart        Cart      `json:"cart"`
	CompletedAt time.Time `json:"completed_at"`
}

// AddItemRequest is the client payload for adding an item to a session.
type AddItemRequest struct {
	ItemID    string `json:"item_id" binding:"required"`
	Kind      string `json:"kind"`
	Name      string `json:"name" binding:"required"`
	UnitPrice int64  `json:"unit_price_minor_units"`
	Quantity  int    `json:"quantity"`
}

// UpdateItemRequest is the client payload for overwriting a line's quantity.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}
