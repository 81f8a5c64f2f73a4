package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appsvc "legalrag/internal/app"
	"legalrag/internal/model"
	"legalrag/internal/platform/logger"
	"legalrag/internal/transport/http/middleware"
	"legalrag/internal/transport/http/response"
)

// RAGService is the part of app.RAGService the handlers call.
type RAGService interface {
	CreateSession(ctx context.Context) (*model.Session, error)
	Upload(ctx context.Context, input appsvc.UploadInput) (*appsvc.UploadResult, error)
	Chat(ctx context.Context, input appsvc.ChatInput) (*appsvc.ChatResult, error)
	History(ctx context.Context, sessionID string) ([]model.ChatRecord, error)
}

func getSessionIDFromContext(c *gin.Context) (string, bool) {
	sessionID, ok := middleware.SessionID(c)
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidSession, "Invalid session")
		return "", false
	}
	return sessionID, true
}

// writeServiceError maps service errors to status codes. Internal details are logged,
// never returned.
func writeServiceError(c *gin.Context, log *logger.Logger, op string, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, appsvc.ErrSessionNotFound):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidSession, "Invalid session")
	case errors.Is(err, appsvc.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request")
	case errors.Is(err, appsvc.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Message is required")
	case errors.Is(err, appsvc.ErrNoText):
		response.Error(c, http.StatusBadRequest, response.CodeNoText, "No text found in PDF")
	case appsvc.IsClientError(err):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "Could not read PDF")
	case appsvc.IsRetryable(err):
		log.Warn(op+" failed, upstream unavailable", "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeUpstreamUnavailable, "Service temporarily unavailable, please retry")
	default:
		log.Error(op+" failed", "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error")
	}
}
