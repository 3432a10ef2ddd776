package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shoestore/internal/middleware"
	"shoestore/internal/models"
	"shoestore/internal/orders"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"fullName" binding:"required"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Register(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		logger := env.log()
		defer handlePanic(c, logger, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			logger.Error("[AUTH] [ERROR] password hashing failed", zap.Error(err))
			respondWithError(c, logger, http.StatusInternalServerError, route, "INTERNAL", "internal server error")
			return
		}

		now := env.now()
		user := models.User{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: string(hash),
			FullName:     strings.TrimSpace(req.FullName),
			Phone:        strings.TrimSpace(req.Phone),
			Role:         models.RoleCustomer,
			Addresses:    []models.Address{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		if err := env.Users.CreateUser(ctx, &user); err != nil {
			if errors.Is(err, orders.ErrConflict) {
				respondWithError(c, logger, http.StatusConflict, route, "CONFLICT", "email already registered")
				return
			}
			respondServiceError(c, logger, route, err)
			return
		}

		token, ok := startSession(c, env, route, user)
		if !ok {
			return
		}
		logger.Info("[AUTH] [INFO] user registered", zap.String("userId", user.ID.Hex()))
		respond(c, http.StatusCreated, gin.H{
			"message": "Registered successfully",
			"token":   token,
			"user":    user,
		})
	}
}

func Login(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		logger := env.log()
		defer handlePanic(c, logger, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, logger, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		user, err := env.Users.FindUserByEmail(ctx, req.Email)
		if errors.Is(err, orders.ErrNotFound) {
			respondWithError(c, logger, http.StatusUnauthorized, route, "UNAUTHORIZED", "invalid credentials")
			return
		}
		if err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			logger.Info("[AUTH] [INFO] login rejected", zap.String("userId", user.ID.Hex()))
			respondWithError(c, logger, http.StatusUnauthorized, route, "UNAUTHORIZED", "invalid credentials")
			return
		}

		token, ok := startSession(c, env, route, user)
		if !ok {
			return
		}
		respond(c, http.StatusOK, gin.H{
			"message": "Logged in successfully",
			"token":   token,
			"user":    user,
		})
	}
}

// Logout clears the stored token, which revokes it immediately.
func Logout(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/logout"
		logger := env.log()
		defer handlePanic(c, logger, route)

		userID := middleware.UserIDFrom(c)
		if userID == nil {
			respondWithError(c, logger, http.StatusUnauthorized, route, "UNAUTHORIZED", "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
		defer cancel()

		if err := env.Users.SetToken(ctx, *userID, ""); err != nil {
			respondServiceError(c, logger, route, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}

func startSession(c *gin.Context, env *Env, route string, user models.User) (string, bool) {
	logger := env.log()
	token, err := middleware.IssueToken(env.JWTSecret, user.ID, user.Role, env.AccessTokenTTL, env.now())
	if err != nil {
		logger.Error("[AUTH] [ERROR] token generation failed", zap.Error(err))
		respondWithError(c, logger, http.StatusInternalServerError, route, "INTERNAL", "token generation failed")
		return "", false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), env.timeout())
	defer cancel()

	if err := env.Users.SetToken(ctx, user.ID, token); err != nil {
		respondServiceError(c, logger, route, err)
		return "", false
	}
	return token, true
}
