package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Preyoshi04/MockWise/internal/api/handlers"
	"github.com/Preyoshi04/MockWise/internal/api/middleware"
)

type Deps struct {
	Auth      *handlers.AuthHandler
	Pages     *handlers.PageHandler
	Interview *handlers.InterviewHandler
	Webhook   *handlers.WebhookHandler
	WS        *handlers.WSHandler

	JWT middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RouteGuard())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	jwtAuth := middleware.JWTAuth(d.JWT)

	// Voice platform callbacks authenticate with the shared secret, not a JWT.
	r.POST("/api/webhook", d.Webhook.Receive)

	auth := r.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/logout", d.Auth.Logout)

	dash := r.Group("/dashboard", jwtAuth)
	dash.GET("", d.Pages.Dashboard)
	dash.GET("/profile", d.Pages.Profile)
	dash.PUT("/profile/tech-stacks", d.Pages.UpdateTechStacks)
	dash.GET("/community", d.Pages.Community)
	dash.GET("/analysis/:id", d.Pages.Analysis)

	r.GET("/interview/ws", jwtAuth, d.WS.Session)

	api := r.Group("/api", jwtAuth)
	api.GET("/interviews", d.Interview.List)
	api.GET("/interviews/:id", d.Interview.Get)
	api.GET("/admin/webhook-events", middleware.RequireAdmin(), d.Interview.WebhookEvents)
}
