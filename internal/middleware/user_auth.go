package middleware

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const principalKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	UserID primitive.ObjectID
	Role   string
	Token  string
}

func setPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
	c.Set("userId", p.UserID)
}

// PrincipalFrom returns the caller attached by the auth middleware, if any.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := value.(*Principal)
	return p, ok && p != nil
}

// UserIDFrom returns the caller's user id or nil for anonymous requests.
func UserIDFrom(c *gin.Context) *primitive.ObjectID {
	p, ok := PrincipalFrom(c)
	if !ok {
		return nil
	}
	id := p.UserID
	return &id
}
