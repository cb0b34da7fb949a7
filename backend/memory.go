package backend

import (
	"context"
	"sync"
	"time"

	"cart-session-service/models"

	"github.com/google/uuid"
)

type backendContext struct {
	items      map[string]*models.CartItem
	order      []string
	lastUsedAt time.Time
}

// MemoryContextService is an in-process ContextService. Each handle owns
// its own item set and idle clock; a handle used after sitting idle past
// the TTL is discarded on the spot and the call fails with
// ContextExpiredError.
type MemoryContextService struct {
	mu       sync.Mutex
	ttl      time.Duration
	contexts map[string]*backendContext
	nowFn    func() time.Time
}

func NewMemoryContextService(ttl time.Duration) *MemoryContextService {
	return &MemoryContextService{
		ttl:      ttl,
		contexts: make(map[string]*backendContext),
		nowFn:    time.Now,
	}
}

func (s *MemoryContextService) CreateContext(_ context.Context) (string, error) {
	handle := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[handle] = &backendContext{
		items:      make(map[string]*models.CartItem),
		lastUsedAt: s.nowFn(),
	}
	return handle, nil
}

// resolve returns the live context for the handle, enforcing lazy expiry.
// Callers must hold s.mu.
func (s *MemoryContextService) resolve(handle string) (*backendContext, error) {
	bc, ok := s.contexts[handle]
	if !ok {
		return nil, &ContextExpiredError{Handle: handle}
	}
	if s.nowFn().Sub(bc.lastUsedAt) > s.ttl {
		delete(s.contexts, handle)
		return nil, &ContextExpiredError{Handle: handle}
	}
	bc.lastUsedAt = s.nowFn()
	return bc, nil
}

func (s *MemoryContextService) AddItem(_ context.Context, handle string, item models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bc, err := s.resolve(handle)
	if err != nil {
		return err
	}
	if line, ok := bc.items[item.ItemID]; ok {
		line.Quantity += item.Quantity
		return nil
	}
	stored := item
	bc.items[item.ItemID] = &stored
	bc.order = append(bc.order, item.ItemID)
	return nil
}

func (s *MemoryContextService) RemoveItem(_ context.Context, handle, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bc, err := s.resolve(handle)
	if err != nil {
		return err
	}
	line, ok := bc.items[itemID]
	if !ok {
		return &ItemNotFoundError{ItemID: itemID}
	}
	if quantity <= 0 || quantity >= line.Quantity {
		delete(bc.items, itemID)
		return nil
	}
	line.Quantity -= quantity
	return nil
}

func (s *MemoryContextService) UpdateItem(_ context.Context, handle, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bc, err := s.resolve(handle)
	if err != nil {
		return err
	}
	line, ok := bc.items[itemID]
	if !ok {
		return &ItemNotFoundError{ItemID: itemID}
	}
	if quantity <= 0 {
		delete(bc.items, itemID)
		return nil
	}
	line.Quantity = quantity
	return nil
}

func (s *MemoryContextService) Checkout(_ context.Context, handle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.resolve(handle); err != nil {
		return "", err
	}
	// The order is placed; the context has served its purpose.
	delete(s.contexts, handle)
	return uuid.NewString(), nil
}

func (s *MemoryContextService) GetCart(_ context.Context, handle string) ([]models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bc, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	items := make([]models.CartItem, 0, len(bc.items))
	seen := make(map[string]bool, len(bc.order))
	for _, id := range bc.order {
		line, ok := bc.items[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, *line)
	}
	return items, nil
}
