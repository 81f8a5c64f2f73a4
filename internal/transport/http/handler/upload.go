package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	appsvc "legalrag/internal/app"
	"legalrag/internal/platform/logger"
	"legalrag/internal/transport/http/response"
)

const maxPDFSize = 10 << 20 // 10MB

type UploadHandler struct {
	service RAGService
	log     *logger.Logger
}

func NewUploadHandler(service RAGService, log *logger.Logger) *UploadHandler {
	return &UploadHandler{service: service, log: log}
}

func (h *UploadHandler) UploadPDF(c *gin.Context) {
	sessionID, ok := getSessionIDFromContext(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "missing file")
		return
	}
	if fileHeader.Size > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "file too large (max 10MB)")
		return
	}
	if strings.ToLower(filepath.Ext(fileHeader.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "only PDF files are allowed")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "cannot read file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPDFSize+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "cannot read file")
		return
	}
	if len(data) > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "file too large (max 10MB)")
		return
	}

	result, err := h.service.Upload(c.Request.Context(), appsvc.UploadInput{
		SessionID: sessionID,
		FileName:  filepath.Base(fileHeader.Filename),
		Data:      data,
	})
	if err != nil {
		writeServiceError(c, h.log, "upload", err)
		return
	}

	response.OK(c, gin.H{
		"status": "ok",
		"pages":  result.Pages,
		"chunks": result.Chunks,
	})
}
