package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
)

type createCheckoutRequest struct {
	Kind         string `json:"kind"`
	Pack         string `json:"pack"`
	GenerationID string `json:"generation_id"`
}

// CreateCheckout opens a hosted payment page for either a credit pack or a
// single HD unlock.
func (s *Server) CreateCheckout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkout := paymentdomain.CheckoutRequest{UserID: userID}
	switch strings.TrimSpace(req.Kind) {
	case "credit_pack":
		checkout.Kind = paymentdomain.CheckoutCreditPack
		checkout.PackSlug = req.Pack
	case "hd_unlock":
		checkout.Kind = paymentdomain.CheckoutHDUnlock
		id, err := snowflake.ParseString(strings.TrimSpace(req.GenerationID))
		if err != nil || id == 0 {
			AbortWithError(c, newValidationError("generation_id", "invalid_generation_id", "generation_id is required"))
			return
		}
		checkout.GenerationID = id
	default:
		AbortWithError(c, newValidationError("kind", "invalid_kind", "kind must be credit_pack or hd_unlock"))
		return
	}

	session, err := s.paymentSvc.CreateCheckoutSession(c.Request.Context(), checkout)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

type confirmCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

// ConfirmCheckout lets a returning client apply a paid session without
// waiting for the webhook. Racing the webhook is safe.
func (s *Server) ConfirmCheckout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req confirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		AbortWithError(c, newValidationError("session_id", "required", "session_id is required"))
		return
	}

	outcome, err := s.paymentSvc.ConfirmCheckout(c.Request.Context(), userID, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}
