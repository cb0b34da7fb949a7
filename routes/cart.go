package routes

import (
	"cart-session-service/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterCartRoutes(r *gin.Engine, controller *controllers.CartController) {
	api := r.Group("/cart")
	{
		api.POST("/session", controller.CreateSession)
		api.GET("/:session_id", controller.GetCart)
		api.POST("/:session_id/items", controller.AddItem)
		api.DELETE("/:session_id/items/:item_id", controller.RemoveItem)
		api.PUT("/:session_id/items/:item_id", controller.UpdateItem)
		api.POST("/:session_id/checkout", controller.Checkout)
	}
}
