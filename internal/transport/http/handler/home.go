package handler

import (
	"github.com/gin-gonic/gin"

	"legalrag/internal/transport/http/response"
)

func Home(c *gin.Context) {
	response.OK(c, gin.H{
		"message": "Welcome to the legalrag server!",
		"status":  "running",
	})
}
