package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/webafza/billing/internal/identity"
	"github.com/webafza/billing/internal/ratelimit"
)

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

// identityMiddleware translates trusted gateway headers into an Actor.
// Requests without a valid identity never reach the handlers.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(headerUserID))
		if rawID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(rawID)
		if err != nil || userID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role, ok := identity.ParseRole(strings.ToLower(strings.TrimSpace(c.GetHeader(headerRole))))
		if !ok {
			role = identity.RoleUser
		}

		actor := identity.Actor{UserID: userID, Role: role}
		c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func actorFromRequest(c *gin.Context) (identity.Actor, bool) {
	return identity.ActorFromContext(c.Request.Context())
}

// rateLimitMiddleware throttles per actor. Requests pass through when
// no Redis-backed bucket is configured.
func rateLimitMiddleware(bucket *ratelimit.TokenBucket, rate float64, burst int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if bucket == nil {
			c.Next()
			return
		}
		actor, ok := actorFromRequest(c)
		if !ok {
			c.Next()
			return
		}

		result, err := bucket.Allow(c.Request.Context(), "billing:rl:"+actor.UserID.String(), rate, burst)
		if err != nil {
			// Rate limiting is advisory; an unreachable Redis must
			// not take the API down.
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", result.RetryAfter.String())
			c.AbortWithStatusJSON(429, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
