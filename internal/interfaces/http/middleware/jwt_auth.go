package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/psn/internal/application/dto"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireJWT is a middleware to protect routes that require a valid HS256 bearer token.
// The token subject becomes the request subject used for domain authorization.
func RequireJWT(secret, issuer string, log logger.Logger) gin.HandlerFunc {
	key := []byte(secret)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		tokenStr := extractBearer(c.GetHeader("Authorization"))
		if tokenStr == "" {
			abortWithError(c, errors.ErrUnauthorized("missing bearer token"))
			return
		}

		var claims jwt.RegisteredClaims
		_, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil {
			log.Warn(c.Request.Context(), "JWT verification failed", logger.Error(err))
			abortWithError(c, errors.ErrUnauthorized("invalid bearer token"))
			return
		}
		if claims.Subject == "" {
			log.Warn(c.Request.Context(), "sub claim is missing from verified token")
			abortWithError(c, errors.ErrUnauthorized("token has no subject"))
			return
		}

		c.Set(string(constants.ContextKeySubject), claims.Subject)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeySubject, claims.Subject))
		c.Next()
	}
}

// Subject returns the authenticated subject of the request.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(constants.ContextKeySubject).(string)
	return s
}

func abortWithError(c *gin.Context, err error) {
	status, body := dto.ErrorResponse(err, TraceID(c))
	c.AbortWithStatusJSON(status, body)
}
