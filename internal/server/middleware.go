package server

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/restyleworks/restyle/internal/providers/identity"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// AuthRequired verifies the bearer token and provisions the local account
// on first sight of the caller.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.FromAuthorizationHeader(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		principal, err := s.verifier.Verify(token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		if _, err := s.userSvc.EnsureAccount(c.Request.Context(), principal.ID, principal.Email); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, principal.ID)
		c.Next()
	}
}

// SubmitRateLimit throttles generation submissions per user. A nil bucket
// (redis not configured) allows everything.
func (s *Server) SubmitRateLimit() gin.HandlerFunc {
	rate := s.cfg.SubmitRatePerMin / 60
	burst := s.cfg.SubmitBurst

	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := s.submitLimiter.Allow(c.Request.Context(), fmt.Sprintf("submit:%d", userID), rate, burst)
		if err != nil {
			// Redis being down should not block paying users.
			s.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			if s.metrics != nil {
				s.metrics.RecordRateLimitDenied(c.Request.Context(), "generations")
			}
			AbortWithError(c, ErrTooManyReqs)
			return
		}

		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok
}
