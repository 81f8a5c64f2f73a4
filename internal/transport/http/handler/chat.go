package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appsvc "legalrag/internal/app"
	"legalrag/internal/platform/logger"
	"legalrag/internal/transport/http/response"
)

type ChatHandler struct {
	service RAGService
	log     *logger.Logger
}

func NewChatHandler(service RAGService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{service: service, log: log}
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	sessionID, ok := getSessionIDFromContext(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Chat(c.Request.Context(), appsvc.ChatInput{
		SessionID: sessionID,
		Message:   req.Message,
	})
	if err != nil {
		writeServiceError(c, h.log, "chat", err)
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID, ok := getSessionIDFromContext(c)
	if !ok {
		return
	}

	records, err := h.service.History(c.Request.Context(), sessionID)
	if err != nil {
		writeServiceError(c, h.log, "chat history", err)
		return
	}
	response.OK(c, gin.H{"chat": records})
}
