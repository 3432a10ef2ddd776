package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"shoestore/internal/middleware"
)

func GetMe(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /users/me"
		logger := env.log()
		defer handlePanic(c, logger, route)

		userID := middleware.UserIDFrom(c)
		if userID == nil {
			respondWithError(c, logger, http.StatusUnauthorized, route, "UNAUTHORIZED", "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		user, err := env.Users.FindUserByID(ctx, *userID)
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"user": user})
	}
}
