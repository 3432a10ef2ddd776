package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"shoestore/internal/models"
)

// AccountLookup resolves the account behind a token.
type AccountLookup interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

var (
	errMissingToken = errors.New("missing token")
	errBadToken     = errors.New("invalid token")
	errRevokedToken = errors.New("token revoked")
)

// Authenticator checks bearer tokens against the signing secret and the token
// stored on the account, so logging out revokes a token before it expires.
type Authenticator struct {
	secret   string
	accounts AccountLookup
	logger   *zap.Logger
}

func NewAuthenticator(secret string, accounts AccountLookup, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: secret, accounts: accounts, logger: logger}
}

func (a *Authenticator) authenticate(c *gin.Context) (*Principal, error) {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw == "" {
		return nil, errMissingToken
	}
	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errBadToken
	}

	userID, _, err := ParseToken(a.secret, parts[1])
	if err != nil {
		a.logger.Debug("[AUTH] token validation failed", zap.Error(err))
		return nil, errBadToken
	}

	user, err := a.accounts.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		a.logger.Debug("[AUTH] token owner lookup failed", zap.String("userId", userID.Hex()), zap.Error(err))
		return nil, errBadToken
	}
	if user.Token == "" || user.Token != parts[1] {
		return nil, errRevokedToken
	}

	return &Principal{UserID: user.ID, Role: user.Role, Token: parts[1]}, nil
}

// RequireUser rejects requests without a valid token. With roles given, the
// account must hold one of them.
func (a *Authenticator) RequireUser(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := a.authenticate(c)
		if err != nil {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized: "+err.Error())
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, principal.Role) {
			abort(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
			return
		}
		setPrincipal(c, principal)
		c.Next()
	}
}

func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return a.RequireUser(models.RoleAdmin)
}

// OptionalUser attaches the principal when a token is sent. A token that is
// sent but invalid is still rejected.
func (a *Authenticator) OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := a.authenticate(c)
		switch {
		case errors.Is(err, errMissingToken):
			c.Next()
			return
		case err != nil:
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized: "+err.Error())
			return
		}
		setPrincipal(c, principal)
		c.Next()
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status": status,
		"data": gin.H{
			"message": message,
			"code":    code,
		},
	})
}
