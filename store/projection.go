package store

import (
	"math"

	"cart-session-service/models"
)

// Project folds an event log into the current cart for a session. It is a
// pure function of its inputs: same events and rate, same cart.
//
// Fold rules:
//   - ItemAdded merges by item id, summing quantity.
//   - ItemRemoved subtracts; the line disappears when its quantity reaches
//     zero or below.
//   - ItemUpdated overwrites the quantity and is a no-op when the item is
//     absent.
//
// A projected line always has a positive quantity.
func Project(sessionID string, events []models.CartEvent, taxRate float64) models.Cart {
	lines := make(map[string]*models.CartItem)
	order := make([]string, 0, len(events))

	for _, ev := range events {
		switch e := ev.(type) {
		case models.ItemAdded:
			if line, ok := lines[e.ItemID]; ok {
				line.Quantity += e.Quantity
				continue
			}
			lines[e.ItemID] = &models.CartItem{
				ItemID:    e.ItemID,
				Kind:      e.Kind,
				Name:      e.Name,
				UnitPrice: e.UnitPrice,
				Quantity:  e.Quantity,
			}
			order = append(order, e.ItemID)
		case models.ItemRemoved:
			line, ok := lines[e.ItemID]
			if !ok {
				continue
			}
			line.Quantity -= e.Quantity
			if line.Quantity <= 0 {
				delete(lines, e.ItemID)
			}
		case models.ItemUpdated:
			line, ok := lines[e.ItemID]
			if !ok {
				continue
			}
			if e.Quantity <= 0 {
				delete(lines, e.ItemID)
				continue
			}
			line.Quantity = e.Quantity
		}
	}

	cart := models.Cart{
		SessionID: sessionID,
		Items:     make([]models.CartItem, 0, len(lines)),
	}
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		line, ok := lines[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		cart.Items = append(cart.Items, *line)
		cart.Subtotal += line.UnitPrice * int64(line.Quantity)
	}

	// Tax rounds half away from zero on the tax amount only.
	cart.Tax = int64(math.Round(float64(cart.Subtotal) * taxRate))
	cart.Total = cart.Subtotal + cart.Tax
	return cart
}
