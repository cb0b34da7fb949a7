package models

import "time"

// CartEvent is the closed set of cart mutations recorded in a session's
// log. Events are immutable once appended; the log's append order is the
// only ordering that matters, timestamps are informational.
type CartEvent interface {
	// ItemRef returns the item the event targets.
	ItemRef() string
	isCartEvent()
}

// ItemAdded records an item (or additional quantity of an existing item)
// entering the cart.
type ItemAdded struct {
	ItemID    string
	Kind      string
	Name      string
	UnitPrice int64
	Quantity  int
	Timestamp time.Time
}

// ItemRemoved records quantity leaving the cart. Quantity is the resolved
// amount actually removed, never more than the line held at the time.
type ItemRemoved struct {
	ItemID    string
	Quantity  int
	Timestamp time.Time
}

// ItemUpdated records a line's quantity being overwritten.
type ItemUpdated struct {
	ItemID    string
	Quantity  int
	Timestamp time.Time
}

func (e ItemAdded) ItemRef() string   { return e.ItemID }
func (e ItemRemoved) ItemRef() string { return e.ItemID }
func (e ItemUpdated) ItemRef() string { return e.ItemID }

func (ItemAdded) isCartEvent()   {}
func (ItemRemoved) isCartEvent() {}
func (ItemUpdated) isCartEvent() {}
