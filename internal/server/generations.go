package server

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
)

type createUploadRequest struct {
	Filename string `json:"filename"`
}

type createUploadResponse struct {
	Key       string `json:"key"`
	UploadURL string `json:"upload_url"`
}

// CreateUpload hands the client a pre-signed PUT URL so room photos go
// straight to the object store without passing through this server.
func (s *Server) CreateUpload(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ext := strings.ToLower(path.Ext(strings.TrimSpace(req.Filename)))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		AbortWithError(c, newValidationError("filename", "unsupported_extension", "unsupported image extension"))
		return
	}

	key := fmt.Sprintf("inputs/%d/%s%s", userID, uuid.NewString(), ext)
	url, err := s.store.PresignPut(c.Request.Context(), key, s.presignTTL())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createUploadResponse{Key: key, UploadURL: url})
}

type submitGenerationRequest struct {
	StyleSlug     string `json:"style"`
	RoomType      string `json:"room_type"`
	InputImageKey string `json:"input_image_key"`
}

func (s *Server) SubmitGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req submitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.generationSvc.Submit(c.Request.Context(), generationdomain.SubmitRequest{
		UserID:        userID,
		StyleSlug:     req.StyleSlug,
		RoomType:      req.RoomType,
		InputImageKey: req.InputImageKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (s *Server) ListGenerations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit, err := parseOptionalLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a positive integer"))
		return
	}

	views, err := s.generationSvc.List(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"generations": views})
}

func (s *Server) GetGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, generationdomain.ErrNotFound)
		return
	}

	view, err := s.generationSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) CancelGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, generationdomain.ErrNotFound)
		return
	}

	view, err := s.generationSvc.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// UnlockGeneration spends credits to unlock the HD output. Card unlocks go
// through checkout instead.
func (s *Server) UnlockGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, generationdomain.ErrNotFound)
		return
	}

	result, err := s.unlockSvc.UnlockWithCredit(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) presignTTL() time.Duration {
	mins := s.cfg.Storage.PresignTTLMins
	if mins <= 0 {
		mins = 60
	}
	return time.Duration(mins) * time.Minute
}
