package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"cart-session-service/kafka"
	"cart-session-service/models"
	"cart-session-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CartController struct {
	service  services.CartService
	producer *kafka.Producer
	logger   *zap.Logger
}

func NewCartController(service services.CartService, producer *kafka.Producer, logger *zap.Logger) *CartController {
	return &CartController{
		service:  service,
		producer: producer,
		logger:   logger,
	}
}

// CreateSession starts a new experience session and returns its empty cart.
func (cc *CartController) CreateSession(c *gin.Context) {
	cart := cc.service.CreateSession(c.Request.Context())
	c.JSON(http.StatusCreated, cart)
}

// GetCart returns the current projection for a session.
func (cc *CartController) GetCart(c *gin.Context) {
	sessionID := c.Param("session_id")

	cart, err := cc.service.GetCart(c.Request.Context(), sessionID)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// AddItem adds an item (or more quantity of an existing one) to the cart.
func (cc *CartController) AddItem(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req models.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	cart, err := cc.service.AddItem(c.Request.Context(), sessionID, req)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// RemoveItem removes an item from the cart; an optional quantity query
// parameter removes only part of the line.
func (cc *CartController) RemoveItem(c *gin.Context) {
	sessionID := c.Param("session_id")
	itemID := c.Param("item_id")

	quantity := 0
	if raw := c.Query("quantity"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity"})
			return
		}
		quantity = parsed
	}

	cart, err := cc.service.RemoveItem(c.Request.Context(), sessionID, itemID, quantity)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// UpdateItem overwrites an item's quantity.
func (cc *CartController) UpdateItem(c *gin.Context) {
	sessionID := c.Param("session_id")
	itemID := c.Param("item_id")

	var req models.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	cart, err := cc.service.UpdateItem(c.Request.Context(), sessionID, itemID, req.Quantity)
	if err != nil {
		cc.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// Checkout places the order for the session and publishes the checkout
// event.
func (cc *CartController) Checkout(c *gin.Context) {
	sessionID := c.Param("session_id")

	order, err := cc.service.Checkout(c.Request.Context(), sessionID)
	if err != nil {
		cc.respondError(c, err)
		return
	}

	cc.producer.PublishCheckoutCompleted(c.Request.Context(), order)

	c.JSON(http.StatusOK, order)
}

// respondError maps domain errors to status codes. Backend context expiry
// never shows up here; the service absorbs it.
func (cc *CartController) respondError(c *gin.Context, err error) {
	var (
		sessionNotFound  *models.SessionNotFoundError
		itemNotFound     *models.ItemNotFoundError
		invalidQuantity  *models.InvalidQuantityError
		invalidRequest   *models.InvalidRequestError
		emptyCart        *models.EmptyCartError
		sessionCompleted *models.SessionCompletedError
	)

	switch {
	case errors.As(err, &sessionNotFound), errors.As(err, &itemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &invalidQuantity), errors.As(err, &invalidRequest), errors.As(err, &emptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &sessionCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		cc.logger.Error("cart operation failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
