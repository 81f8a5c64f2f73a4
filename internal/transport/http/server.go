package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"legalrag/internal/bootstrap"
	"legalrag/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	checks := make([]handler.DependencyCheck, 0, len(app.HealthChecks))
	for _, hc := range app.HealthChecks {
		checks = append(checks, handler.DependencyCheck{Name: hc.Name, Check: hc.Check})
	}

	return newRouter(routerDeps{
		log:            app.Log,
		service:        app.RAG,
		allowedOrigins: app.Config.CORS.AllowedOrigins,
		cookie: handler.CookieOptions{
			Name:   app.Config.Session.CookieName,
			Secret: app.Config.Session.CookieSecret,
			Secure: app.Config.Session.CookieSecure,
			MaxAge: time.Duration(app.Config.Session.MaxAgeMinutes) * time.Minute,
		},
		health: handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks...),
	})
}
