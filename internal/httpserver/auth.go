package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"todoagent/internal/handler"
	"todoagent/pkg/util"
)

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type JWTVerifier struct {
	Secret string
}

func (v JWTVerifier) Verify(token string) (string, error) {
	return util.ParseJWT(token, v.Secret)
}

// NewTokenVerifier returns the JWT verifier. Builds with the devauth tag
// also accept the fixed development tokens.
func NewTokenVerifier(secret string) TokenVerifier {
	return withDevTokens(JWTVerifier{Secret: secret})
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// store user_id in context so handlers can use it
		c.Set(handler.UserIDKey, userID)
		c.Next()
	}
}
