package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"legalrag/internal/pkg/jwtutil"
	"legalrag/internal/platform/logger"
	"legalrag/internal/transport/http/response"
)

type CookieOptions struct {
	Name   string
	Secret string
	Secure bool
	MaxAge time.Duration
}

type SessionHandler struct {
	service RAGService
	cookie  CookieOptions
	log     *logger.Logger
}

func NewSessionHandler(service RAGService, cookie CookieOptions, log *logger.Logger) *SessionHandler {
	return &SessionHandler{service: service, cookie: cookie, log: log}
}

// Create starts a fresh session and hands its signed id to the browser as an HttpOnly
// cookie. Any previous session cookie is replaced.
func (h *SessionHandler) Create(c *gin.Context) {
	session, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		writeServiceError(c, h.log, "create session", err)
		return
	}

	token, err := jwtutil.GenerateToken(h.cookie.Secret, h.cookie.MaxAge, session.ID)
	if err != nil {
		writeServiceError(c, h.log, "sign session cookie", err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	response.OK(c, gin.H{"status": "ok"})
}
