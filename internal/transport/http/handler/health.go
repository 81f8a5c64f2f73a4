package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DependencyCheck probes one backing service. A nil error means it is reachable.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	checks    []DependencyCheck
}

func NewHealthHandler(appName, env string, startedAt time.Time, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{
		appName:   appName,
		env:       env,
		startedAt: startedAt,
		checks:    checks,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dependencyStatus := make(map[string]string, len(h.checks))
	allUp := true
	for _, dep := range h.checks {
		if err := dep.Check(ctx); err != nil {
			dependencyStatus[dep.Name] = "down: " + err.Error()
			allUp = false
			continue
		}
		dependencyStatus[dep.Name] = "up"
	}

	statusCode := http.StatusOK
	status := "ok"
	if !allUp {
		statusCode = http.StatusServiceUnavailable
		status = "degraded"
	}

	c.JSON(statusCode, gin.H{
		"status":       status,
		"app":          h.appName,
		"env":          h.env,
		"uptime":       time.Since(h.startedAt).String(),
		"dependencies": dependencyStatus,
	})
}
