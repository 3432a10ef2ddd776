package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"shoestore/internal/middleware"
)

// RegisterRoutes mounts every route under router. idempotency guards checkout and
// may be nil.
func RegisterRoutes(router gin.IRouter, env *Env, auth *middleware.Authenticator, idempotency gin.HandlerFunc) {
	if idempotency == nil {
		idempotency = func(c *gin.Context) { c.Next() }
	}

	router.GET("/healthz", Health(env))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", Register(env))
		authGroup.POST("/login", Login(env))
		authGroup.POST("/logout", auth.RequireUser(), Logout(env))
	}

	router.GET("/users/me", auth.RequireUser(), GetMe(env))
	router.GET("/products/:id", GetProduct(env))

	orderGroup := router.Group("/orders")
	{
		orderGroup.POST("", auth.OptionalUser(), idempotency, CreateOrder(env))
		orderGroup.GET("/my_orders", auth.RequireUser(), GetMyOrders(env))
		orderGroup.GET("/number/:orderNumber", GetOrderByNumber(env))
		orderGroup.GET("/:id", GetOrder(env))
		orderGroup.PUT("/:id/cancel", auth.OptionalUser(), CancelOrder(env))
	}

	admin := router.Group("/admin")
	admin.Use(auth.RequireAdmin())
	{
		admin.POST("/products", CreateProduct(env))

		admin.GET("/orders", GetAllOrders(env))
		admin.GET("/orders/user/:userId", GetUserOrders(env))
		admin.PUT("/orders/:id/status", UpdateOrderStatus(env))
		admin.PUT("/orders/:id/payment-status", UpdatePaymentStatus(env))
		admin.PUT("/orders/:id/shipping", UpdateShippingInfo(env))
		admin.DELETE("/orders/:id", DeleteOrder(env))
	}
}

func Health(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		if env.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
			defer cancel()
			if err := env.Ping(ctx); err != nil {
				respondWithError(c, env.log(), http.StatusServiceUnavailable, "GET /healthz", "UNAVAILABLE", "database unavailable")
				return
			}
		}
		respond(c, http.StatusOK, gin.H{"message": "ok"})
	}
}
