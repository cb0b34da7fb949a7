package services

import (
	"context"
	"errors"
	"time"

	"cart-session-service/backend"
	"cart-session-service/models"
	"cart-session-service/store"

	"go.uber.org/zap"
)

// CartService is the client-facing cart surface. Sessions are stable for
// callers even though the backend context underneath them expires; every
// mutation runs through a recovery wrapper that recreates and replays the
// backend context when it has gone stale.
type CartService interface {
	CreateSession(ctx context.Context) models.Cart
	GetCart(ctx context.Context, sessionID string) (models.Cart, error)
	AddItem(ctx context.Context, sessionID string, req models.AddItemRequest) (models.Cart, error)
	// RemoveItem removes quantity units of the item; quantity 0 removes the
	// whole line. The amount actually removed is clamped to what the line
	// holds.
	RemoveItem(ctx context.Context, sessionID, itemID string, quantity int) (models.Cart, error)
	UpdateItem(ctx context.Context, sessionID, itemID string, quantity int) (models.Cart, error)
	Checkout(ctx context.Context, sessionID string) (models.Order, error)
}

type cartServiceImpl struct {
	store   *store.SessionStore
	backend backend.ContextService
	taxRate float64
	logger  *zap.Logger
}

// NewCartService creates a new CartService.
func NewCartService(
	sessions *store.SessionStore,
	backendSvc backend.ContextService,
	taxRate float64,
	logger *zap.Logger,
) CartService {
	return &cartServiceImpl{
		store:   sessions,
		backend: backendSvc,
		taxRate: taxRate,
		logger:  logger,
	}
}

func (s *cartServiceImpl) CreateSession(_ context.Context) models.Cart {
	sessionID := s.store.CreateSession()
	s.logger.Info("session created", zap.String("session_id", sessionID))
	return store.Project(sessionID, nil, s.taxRate)
}

// GetCart is a pure read: it folds the stored log and never touches the
// backend. Completed sessions remain readable.
func (s *cartServiceImpl) GetCart(_ context.Context, sessionID string) (models.Cart, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return models.Cart{}, err
	}
	return store.Project(sess.SessionID, sess.Events, s.taxRate), nil
}

func (s *cartServiceImpl) AddItem(ctx context.Context, sessionID string, req models.AddItemRequest) (models.Cart, error) {
	sess, err := s.activeSession(sessionID)
	if err != nil {
		return models.Cart{}, err
	}
	if req.ItemID == "" {
		return models.Cart{}, &models.InvalidRequestError{Reason: "item_id is required"}
	}
	if req.UnitPrice < 0 {
		return models.Cart{}, &models.InvalidRequestError{Reason: "unit price cannot be negative"}
	}
	if req.Quantity <= 0 {
		return models.Cart{}, &models.InvalidQuantityError{Quantity: req.Quantity}
	}

	event := models.ItemAdded{
		ItemID:    req.ItemID,
		Kind:      req.Kind,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
		Timestamp: time.Now(),
	}
	err = s.withRecovery(ctx, sess, func(handle string) error {
		return s.backend.AddItem(ctx, handle, models.CartItem{
			ItemID:    req.ItemID,
			Kind:      req.Kind,
			Name:      req.Name,
			UnitPrice: req.UnitPrice,
			Quantity:  req.Quantity,
		})
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.appendAndProject(sessionID, event)
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, sessionID, itemID string, quantity int) (models.Cart, error) {
	sess, err := s.activeSession(sessionID)
	if err != nil {
		return models.Cart{}, err
	}
	if itemID == "" {
		return models.Cart{}, &models.InvalidRequestError{Reason: "item_id is required"}
	}
	if quantity < 0 {
		return models.Cart{}, &models.InvalidQuantityError{Quantity: quantity}
	}

	current, ok := projectedLine(sess, itemID, s.taxRate)
	if !ok {
		return models.Cart{}, &models.ItemNotFoundError{ItemID: itemID}
	}
	resolved := current.Quantity
	if quantity > 0 && quantity < current.Quantity {
		resolved = quantity
	}

	err = s.withRecovery(ctx, sess, func(handle string) error {
		return s.backend.RemoveItem(ctx, handle, itemID, resolved)
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.appendAndProject(sessionID, models.ItemRemoved{
		ItemID:    itemID,
		Quantity:  resolved,
		Timestamp: time.Now(),
	})
}

func (s *cartServiceImpl) UpdateItem(ctx context.Context, sessionID, itemID string, quantity int) (models.Cart, error) {
	sess, err := s.activeSession(sessionID)
	if err != nil {
		return models.Cart{}, err
	}
	if itemID == "" {
		return models.Cart{}, &models.InvalidRequestError{Reason: "item_id is required"}
	}
	if quantity <= 0 {
		return models.Cart{}, &models.InvalidQuantityError{Quantity: quantity}
	}
	if _, ok := projectedLine(sess, itemID, s.taxRate); !ok {
		return models.Cart{}, &models.ItemNotFoundError{ItemID: itemID}
	}

	err = s.withRecovery(ctx, sess, func(handle string) error {
		return s.backend.UpdateItem(ctx, handle, itemID, quantity)
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.appendAndProject(sessionID, models.ItemUpdated{
		ItemID:    itemID,
		Quantity:  quantity,
		Timestamp: time.Now(),
	})
}

func (s *cartServiceImpl) Checkout(ctx context.Context, sessionID string) (models.Order, error) {
	sess, err := s.activeSession(sessionID)
	if err != nil {
		return models.Order{}, err
	}
	final := store.Project(sess.SessionID, sess.Events, s.taxRate)
	if len(final.Items) == 0 {
		return models.Order{}, &models.EmptyCartError{SessionID: sessionID}
	}

	var orderID string
	err = s.withRecovery(ctx, sess, func(handle string) error {
		id, checkoutErr := s.backend.Checkout(ctx, handle)
		if checkoutErr != nil {
			return checkoutErr
		}
		orderID = id
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	if err := s.store.MarkCompleted(sessionID); err != nil {
		return models.Order{}, err
	}
	s.logger.Info("session checked out",
		zap.String("session_id", sessionID),
		zap.String("order_id", orderID),
		zap.Int64("total_minor_units", final.Total),
	)
	return models.Order{
		OrderID:     orderID,
		Cart:        final,
		CompletedAt: time.Now(),
	}, nil
}

// activeSession loads the session and rejects mutations on completed ones.
func (s *cartServiceImpl) activeSession(sessionID string) (store.Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return store.Session{}, err
	}
	if sess.Completed {
		return store.Session{}, &models.SessionCompletedError{SessionID: sessionID}
	}
	return sess, nil
}

// withRecovery performs one backend mutation for the session, absorbing
// backend context expiry: resolve a handle (minting one and replaying the
// log when the session has none), attempt the mutation, and on an expiry
// signal mint a fresh handle, replay the full log against it, and retry
// the mutation exactly once. A failure of that retry propagates; there is
// no second recovery, so an endlessly expiring backend cannot loop us.
//
// Concurrent calls against the same session can interleave between the
// projection read, the backend mutation and the event append. A production
// hardening would hold a per-session lock from here until the append.
func (s *cartServiceImpl) withRecovery(ctx context.Context, sess store.Session, mutate func(handle string) error) error {
	handle := sess.BackendContextRef
	if handle == "" {
		fresh, err := s.recreateContext(ctx, sess)
		if err != nil {
			return err
		}
		handle = fresh
	}

	err := mutate(handle)
	var expired *backend.ContextExpiredError
	if !errors.As(err, &expired) {
		return err
	}

	s.logger.Info("backend context expired, recovering",
		zap.String("session_id", sess.SessionID),
		zap.String("handle", expired.Handle),
		zap.Int("events_to_replay", len(sess.Events)),
	)
	fresh, err := s.recreateContext(ctx, sess)
	if err != nil {
		return err
	}
	return mutate(fresh)
}

// recreateContext mints a new backend handle, records it on the session
// and replays the session's event log against it in append order.
func (s *cartServiceImpl) recreateContext(ctx context.Context, sess store.Session) (string, error) {
	handle, err := s.backend.CreateContext(ctx)
	if err != nil {
		return "", err
	}
	if err := s.store.SetBackendContextRef(sess.SessionID, handle); err != nil {
		return "", err
	}
	if err := s.replay(ctx, sess, handle); err != nil {
		return "", err
	}
	return handle, nil
}

// replay re-issues every logged mutation against the handle. The log is
// the source of truth; a backend item-not-found on a remove/update step is
// swallowed because a later event in the same log may already have
// eliminated that item. Policy, not accident: nothing proves the later
// events always explain the gap, so each swallow is logged at Warn.
func (s *cartServiceImpl) replay(ctx context.Context, sess store.Session, handle string) error {
	for _, event := range sess.Events {
		var err error
		tolerateMissing := false

		switch e := event.(type) {
		case models.ItemAdded:
			err = s.backend.AddItem(ctx, handle, models.CartItem{
				ItemID:    e.ItemID,
				Kind:      e.Kind,
				Name:      e.Name,
				UnitPrice: e.UnitPrice,
				Quantity:  e.Quantity,
			})
		case models.ItemRemoved:
			tolerateMissing = true
			err = s.backend.RemoveItem(ctx, handle, e.ItemID, e.Quantity)
		case models.ItemUpdated:
			tolerateMissing = true
			err = s.backend.UpdateItem(ctx, handle, e.ItemID, e.Quantity)
		}
		if err == nil {
			continue
		}

		var notFound *backend.ItemNotFoundError
		if tolerateMissing && errors.As(err, &notFound) {
			s.logger.Warn("replay step targeted a missing item, skipping",
				zap.String("session_id", sess.SessionID),
				zap.String("item_id", notFound.ItemID),
			)
			continue
		}
		s.logger.Error("replay aborted",
			zap.String("session_id", sess.SessionID),
			zap.String("item_id", event.ItemRef()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// appendAndProject records the event (the backend has already accepted the
// mutation) and returns the fresh projection.
func (s *cartServiceImpl) appendAndProject(sessionID string, event models.CartEvent) (models.Cart, error) {
	if err := s.store.AppendEvent(sessionID, event); err != nil {
		return models.Cart{}, err
	}
	events, err := s.store.Events(sessionID)
	if err != nil {
		return models.Cart{}, err
	}
	return store.Project(sessionID, events, s.taxRate), nil
}

// projectedLine folds the session's log and looks up a single line.
func projectedLine(sess store.Session, itemID string, taxRate float64) (models.CartItem, bool) {
	cart := store.Project(sess.SessionID, sess.Events, taxRate)
	for _, item := range cart.Items {
		if item.ItemID == itemID {
			return item, true
		}
	}
	return models.CartItem{}, false
}
