package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	generationservice "github.com/restyleworks/restyle/internal/generation/service"
	"github.com/restyleworks/restyle/internal/providers/inference"
	"go.uber.org/zap"
)

// HandlePaymentWebhook ingests Stripe event deliveries. Replays and event
// types we don't care about are acknowledged so Stripe stops retrying.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.paymentSvc.ProcessWebhook(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// HandleInferenceWebhook ingests provider completion callbacks. Deliveries
// for jobs we no longer track are acknowledged, not retried.
func (s *Server) HandleInferenceWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	jobID, state, err := inference.ParseWebhookPayload(payload)
	if err != nil || jobID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.generationSvc.ReconcileByJobID(c.Request.Context(), jobID, generationservice.InputFromState(0, state))
	if err != nil {
		if errors.Is(err, generationdomain.ErrNotFound) {
			s.log.Warn("webhook for unknown job", zap.String("job_id", jobID))
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
