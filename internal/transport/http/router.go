package http

import (
	"github.com/gin-gonic/gin"

	"legalrag/internal/platform/logger"
	"legalrag/internal/transport/http/handler"
	"legalrag/internal/transport/http/middleware"
)

type routerDeps struct {
	log            *logger.Logger
	service        handler.RAGService
	allowedOrigins []string
	cookie         handler.CookieOptions
	health         *handler.HealthHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLog(deps.log),
		middleware.CORS(deps.allowedOrigins),
	)

	sessionHandler := handler.NewSessionHandler(deps.service, deps.cookie, deps.log)
	uploadHandler := handler.NewUploadHandler(deps.service, deps.log)
	chatHandler := handler.NewChatHandler(deps.service, deps.log)

	router.GET("/", handler.Home)
	router.GET("/healthz", deps.health.Check)
	router.POST("/session", sessionHandler.Create)

	authed := router.Group("/")
	authed.Use(middleware.RequireSession(deps.cookie.Secret, deps.cookie.Name))
	authed.POST("/upload", uploadHandler.UploadPDF)
	authed.POST("/chat", chatHandler.SendMessage)
	authed.GET("/chat/history", chatHandler.GetHistory)

	return router
}
