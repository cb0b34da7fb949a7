package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cart-session-service/backend"
	"cart-session-service/models"
	"cart-session-service/services"
	"cart-session-service/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Fake backend ---

// fakeBackend is a scripted backend.ContextService. Tests can expire every
// live handle at will (simulating the backend discarding state after idle)
// and inject failures per item.
type fakeBackend struct {
	contexts    map[string]*fakeContext
	lastHandle  string
	createCalls int
	addCalls    map[string]int

	// removeMissing forces RemoveItem to report item-not-found.
	removeMissing bool
	// failAddFor injects a non-expiry failure on adds of the given item.
	failAddFor map[string]error
	// expireEveryMutation makes every mutation report expiry, even against
	// freshly minted handles.
	expireEveryMutation bool
}

type fakeContext struct {
	items   map[string]models.CartItem
	order   []string
	expired bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		contexts:   make(map[string]*fakeContext),
		addCalls:   make(map[string]int),
		failAddFor: make(map[string]error),
	}
}

// expireAll marks every live handle expired and discards its state.
func (f *fakeBackend) expireAll() {
	for _, fc := range f.contexts {
		fc.expired = true
		fc.items = make(map[string]models.CartItem)
		fc.order = nil
	}
}

// currentItems returns the item set held by the most recently minted handle.
func (f *fakeBackend) currentItems() map[string]models.CartItem {
	fc, ok := f.contexts[f.lastHandle]
	if !ok {
		return nil
	}
	return fc.items
}

func (f *fakeBackend) resolve(handle string) (*fakeContext, error) {
	fc, ok := f.contexts[handle]
	if !ok || fc.expired {
		return nil, &backend.ContextExpiredError{Handle: handle}
	}
	return fc, nil
}

func (f *fakeBackend) CreateContext(_ context.Context) (string, error) {
	f.createCalls++
	handle := fmt.Sprintf("handle-%d", f.createCalls)
	f.contexts[handle] = &fakeContext{items: make(map[string]models.CartItem)}
	f.lastHandle = handle
	return handle, nil
}

func (f *fakeBackend) AddItem(_ context.Context, handle string, item models.CartItem) error {
	if f.expireEveryMutation {
		return &backend.ContextExpiredError{Handle: handle}
	}
	if err, ok := f.failAddFor[item.ItemID]; ok {
		return err
	}
	fc, err := f.resolve(handle)
	if err != nil {
		return err
	}
	f.addCalls[item.ItemID]++
	if existing, ok := fc.items[item.ItemID]; ok {
		existing.Quantity += item.Quantity
		fc.items[item.ItemID] = existing
		return nil
	}
	fc.items[item.ItemID] = item
	fc.order = append(fc.order, item.ItemID)
	return nil
}

func (f *fakeBackend) RemoveItem(_ context.Context, handle, itemID string, quantity int) error {
	if f.expireEveryMutation {
		return &backend.ContextExpiredError{Handle: handle}
	}
	fc, err := f.resolve(handle)
	if err != nil {
		return err
	}
	if f.removeMissing {
		return &backend.ItemNotFoundError{ItemID: itemID}
	}
	existing, ok := fc.items[itemID]
	if !ok {
		return &backend.ItemNotFoundError{ItemID: itemID}
	}
	if quantity <= 0 || quantity >= existing.Quantity {
		delete(fc.items, itemID)
		return nil
	}
	existing.Quantity -= quantity
	fc.items[itemID] = existing
	return nil
}

func (f *fakeBackend) UpdateItem(_ context.Context, handle, itemID string, quantity int) error {
	if f.expireEveryMutation {
		return &backend.ContextExpiredError{Handle: handle}
	}
	fc, err := f.resolve(handle)
	if err != nil {
		return err
	}
	existing, ok := fc.items[itemID]
	if !ok {
		return &backend.ItemNotFoundError{ItemID: itemID}
	}
	existing.Quantity = quantity
	fc.items[itemID] = existing
	return nil
}

func (f *fakeBackend) Checkout(_ context.Context, handle string) (string, error) {
	if f.expireEveryMutation {
		return "", &backend.ContextExpiredError{Handle: handle}
	}
	fc, err := f.resolve(handle)
	if err != nil {
		return "", err
	}
	fc.expired = true
	return "order-" + handle, nil
}

func (f *fakeBackend) GetCart(_ context.Context, handle string) ([]models.CartItem, error) {
	fc, err := f.resolve(handle)
	if err != nil {
		return nil, err
	}
	items := make([]models.CartItem, 0, len(fc.items))
	for _, id := range fc.order {
		if item, ok := fc.items[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// --- Helpers ---

func newTestService(t *testing.T) (services.CartService, *store.SessionStore, *fakeBackend) {
	t.Helper()
	fake := newFakeBackend()
	sessions := store.NewSessionStore()
	logger, _ := zap.NewDevelopment()
	return services.NewCartService(sessions, fake, 0.10, logger), sessions, fake
}

func addReq(itemID string, price int64, qty int) models.AddItemRequest {
	return models.AddItemRequest{
		ItemID:    itemID,
		Kind:      "ticket",
		Name:      "Item " + itemID,
		UnitPrice: price,
		Quantity:  qty,
	}
}

func itemQuantities(cart models.Cart) map[string]int {
	out := make(map[string]int, len(cart.Items))
	for _, item := range cart.Items {
		out[item.ItemID] = item.Quantity
	}
	return out
}

// --- Tests ---

func TestCreateSessionReturnsEmptyCart(t *testing.T) {
	svc, _, fake := newTestService(t)

	cart := svc.CreateSession(context.Background())
	assert.NotEmpty(t, cart.SessionID)
	assert.Empty(t, cart.Items)
	// Session creation alone never touches the backend.
	assert.Equal(t, 0, fake.createCalls)
}

func TestAddItemAccumulatesAndTotals(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("pass", 99900, 1))
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, sessionID, addReq("addon", 7000, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(106900), cart.Subtotal)
	assert.Equal(t, int64(10690), cart.Tax)
	assert.Equal(t, int64(117590), cart.Total)

	cart, err = svc.AddItem(ctx, sessionID, addReq("pass", 99900, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, itemQuantities(cart)["pass"])
	assert.Len(t, cart.Items, 2)
}

func TestAddItemValidation(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	var invalidReq *models.InvalidRequestError
	_, err := svc.AddItem(ctx, sessionID, addReq("", 100, 1))
	assert.ErrorAs(t, err, &invalidReq)

	_, err = svc.AddItem(ctx, sessionID, addReq("a", -5, 1))
	assert.ErrorAs(t, err, &invalidReq)

	var invalidQty *models.InvalidQuantityError
	_, err = svc.AddItem(ctx, sessionID, addReq("a", 100, 0))
	assert.ErrorAs(t, err, &invalidQty)

	// Validation failures never reach the backend.
	assert.Equal(t, 0, fake.createCalls)
}

func TestSessionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	var notFound *models.SessionNotFoundError
	_, err := svc.GetCart(context.Background(), "missing")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.SessionID)

	_, err = svc.AddItem(context.Background(), "missing", addReq("a", 100, 1))
	assert.ErrorAs(t, err, &notFound)
}

func TestRemoveItemPartialThenExceeding(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("x", 1000, 3))
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, sessionID, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, itemQuantities(cart)["x"])

	// Removing more than remains clamps and eliminates the line.
	cart, err = svc.RemoveItem(ctx, sessionID, "x", 5)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	// The log records the resolved amount, not the requested one.
	events, err := sessions.Events(sessionID)
	require.NoError(t, err)
	last, ok := events[len(events)-1].(models.ItemRemoved)
	require.True(t, ok)
	assert.Equal(t, 2, last.Quantity)
}

func TestRemoveItemWithoutQuantityRemovesLine(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("x", 1000, 4))
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, sessionID, "x", 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestRemoveItemNotInCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	var notFound *models.ItemNotFoundError
	_, err := svc.RemoveItem(ctx, sessionID, "ghost", 1)
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.ItemID)
}

func TestUpdateItem(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 2))
	require.NoError(t, err)

	cart, err := svc.UpdateItem(ctx, sessionID, "a", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, itemQuantities(cart)["a"])

	var invalidQty *models.InvalidQuantityError
	_, err = svc.UpdateItem(ctx, sessionID, "a", 0)
	assert.ErrorAs(t, err, &invalidQty)

	var notFound *models.ItemNotFoundError
	_, err = svc.UpdateItem(ctx, sessionID, "ghost", 2)
	assert.ErrorAs(t, err, &notFound)
}

func TestExpiryIsInvisibleToCallers(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 500, 1))
	require.NoError(t, err)

	fake.expireAll()

	cart, err := svc.AddItem(ctx, sessionID, addReq("b", 300, 1))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, itemQuantities(cart))

	// Exactly one replay pass: a's add was issued once originally and once
	// during recovery.
	assert.Equal(t, 2, fake.addCalls["a"])
	assert.Equal(t, 1, fake.addCalls["b"])
	assert.Equal(t, 2, fake.createCalls)
}

func TestExpiryMidSequence(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 2))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, sessionID, addReq("b", 200, 1))
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, sessionID, "a", 1)
	require.NoError(t, err)

	fake.expireAll()

	_, err = svc.UpdateItem(ctx, sessionID, "a", 3)
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, sessionID, addReq("c", 300, 1))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 3, "b": 1, "c": 1}, itemQuantities(cart))

	// The recovered backend context converged to the same state.
	backendQty := make(map[string]int)
	for id, item := range fake.currentItems() {
		backendQty[id] = item.Quantity
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 1, "c": 1}, backendQty)
}

func TestReplayEquivalence(t *testing.T) {
	type op func(ctx context.Context, svc services.CartService, sessionID string) error

	ops := []op{
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.AddItem(ctx, id, addReq("a", 100, 2))
			return err
		},
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.AddItem(ctx, id, addReq("b", 250, 1))
			return err
		},
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.RemoveItem(ctx, id, "a", 1)
			return err
		},
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.UpdateItem(ctx, id, "b", 3)
			return err
		},
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.AddItem(ctx, id, addReq("c", 75, 2))
			return err
		},
		func(ctx context.Context, svc services.CartService, id string) error {
			_, err := svc.RemoveItem(ctx, id, "c", 5)
			return err
		},
	}

	run := func(expireBefore int) models.Cart {
		svc, _, fake := newTestService(t)
		ctx := context.Background()
		sessionID := svc.CreateSession(ctx).SessionID
		for i, step := range ops {
			if i == expireBefore {
				fake.expireAll()
			}
			require.NoError(t, step(ctx, svc, sessionID), "op %d (expiry before %d)", i, expireBefore)
		}
		cart, err := svc.GetCart(ctx, sessionID)
		require.NoError(t, err)
		return cart
	}

	baseline := run(-1)
	for i := range ops {
		withExpiry := run(i)
		assert.Equal(t, itemQuantities(baseline), itemQuantities(withExpiry), "expiry before op %d", i)
		assert.Equal(t, baseline.Total, withExpiry.Total, "expiry before op %d", i)
	}
}

func TestGetCartNeverTouchesBackend(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 1))
	require.NoError(t, err)

	fake.expireAll()
	creates := fake.createCalls

	cart, err := svc.GetCart(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, itemQuantities(cart))
	assert.Equal(t, creates, fake.createCalls)
}

func TestCheckout(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 99900, 1))
	require.NoError(t, err)

	order, err := svc.Checkout(ctx, sessionID)
	require.NoError(t, err)
	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, int64(99900), order.Cart.Subtotal)
	assert.Equal(t, sessionID, order.Cart.SessionID)

	// Completed sessions reject every mutation, including checkout.
	var completed *models.SessionCompletedError
	_, err = svc.Checkout(ctx, sessionID)
	assert.ErrorAs(t, err, &completed)
	_, err = svc.AddItem(ctx, sessionID, addReq("b", 100, 1))
	assert.ErrorAs(t, err, &completed)
	_, err = svc.RemoveItem(ctx, sessionID, "a", 0)
	assert.ErrorAs(t, err, &completed)
	_, err = svc.UpdateItem(ctx, sessionID, "a", 2)
	assert.ErrorAs(t, err, &completed)

	// But the final projection stays readable.
	cart, err := svc.GetCart(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, itemQuantities(cart))
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	var empty *models.EmptyCartError
	_, err := svc.Checkout(ctx, sessionID)
	assert.ErrorAs(t, err, &empty)

	// Emptied carts count as empty too.
	_, err = svc.AddItem(ctx, sessionID, addReq("a", 100, 1))
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, sessionID, "a", 0)
	require.NoError(t, err)
	_, err = svc.Checkout(ctx, sessionID)
	assert.ErrorAs(t, err, &empty)
}

func TestCheckoutSurvivesExpiry(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 500, 2))
	require.NoError(t, err)

	fake.expireAll()

	order, err := svc.Checkout(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), order.Cart.Subtotal)
}

func TestBackendFailureLeavesLogUnchanged(t *testing.T) {
	svc, sessions, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 1))
	require.NoError(t, err)

	backendDown := errors.New("backend unavailable")
	fake.failAddFor["b"] = backendDown

	_, err = svc.AddItem(ctx, sessionID, addReq("b", 200, 1))
	require.ErrorIs(t, err, backendDown)

	// The event never made it into the log.
	events, err := sessions.Events(sessionID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReplayFailureAbortsOperation(t *testing.T) {
	svc, sessions, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 1))
	require.NoError(t, err)

	fake.expireAll()
	backendDown := errors.New("backend unavailable")
	fake.failAddFor["a"] = backendDown

	// Replaying a's add fails, so the whole operation aborts.
	_, err = svc.AddItem(ctx, sessionID, addReq("b", 200, 1))
	require.ErrorIs(t, err, backendDown)

	events, err := sessions.Events(sessionID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestReplaySwallowsMissingItemOnRemove(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 3))
	require.NoError(t, err)
	_, err = svc.RemoveItem(ctx, sessionID, "a", 1)
	require.NoError(t, err)

	fake.expireAll()
	// Make the replayed remove hit a missing item; the policy is to skip
	// it and keep going.
	fake.removeMissing = true

	cart, err := svc.AddItem(ctx, sessionID, addReq("b", 200, 1))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, itemQuantities(cart))
}

func TestNoSecondRecoveryAfterRetry(t *testing.T) {
	svc, _, fake := newTestService(t)
	ctx := context.Background()
	sessionID := svc.CreateSession(ctx).SessionID

	fake.expireEveryMutation = true

	var expired *backend.ContextExpiredError
	_, err := svc.AddItem(ctx, sessionID, addReq("a", 100, 1))
	require.ErrorAs(t, err, &expired)

	// One handle for the first attempt, one for the single recovery.
	assert.Equal(t, 2, fake.createCalls)
}
