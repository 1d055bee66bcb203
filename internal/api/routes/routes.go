package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoointerview/internal/api/handlers"
	"github.com/yoockh/yoointerview/internal/api/middleware"
)

type Deps struct {
	Session      *handlers.SessionHandler
	Conversation *handlers.ConversationHandler
	Scheduled    *handlers.ScheduledHandler
	Profile      *handlers.ProfileHandler
	Transcript   *handlers.TranscriptHandler
	WS           *handlers.WSHandler

	// Auth guards portal routes. Defaults to middleware.JWTAuth().
	Auth gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Candidate routes, authorized by the session access token
	s := r.Group("/sessions/:session_id")
	s.POST("/access", d.Session.Access)
	s.GET("/status", d.Session.Status)
	s.POST("/end", d.Session.End)
	s.POST("/cancel", d.Session.Cancel)
	s.POST("/conversation/init", d.Conversation.Initialize)
	s.GET("/conversation", d.Conversation.History)
	s.POST("/messages", d.Conversation.PostMessage)
	s.POST("/code/start", d.Conversation.CodeStart)
	s.POST("/code/result", d.Conversation.CodeResult)
	r.GET("/ws/sessions/:session_id", d.WS.SessionWS)

	// Portal routes (JWT)
	auth := d.Auth
	if auth == nil {
		auth = middleware.JWTAuth()
	}
	portal := r.Group("/")
	portal.Use(auth)

	portal.POST("/candidate/session/access", d.Session.AccessByCandidate)
	portal.POST("/scheduled-sessions/:session_id/access", d.Scheduled.Access)

	recruiter := portal.Group("/")
	recruiter.Use(middleware.RequireRecruiter())
	recruiter.POST("/sessions", d.Session.Create)
	recruiter.POST("/recruiter/sessions/:session_id/cancel", d.Session.CancelByRecruiter)
	recruiter.GET("/recruiter/sessions/:session_id/transcript", d.Transcript.ListBySession)
	recruiter.GET("/candidates/:candidate_id/profile", d.Profile.Get)
	recruiter.PUT("/candidates/:candidate_id/profile", d.Profile.Update)
	recruiter.POST("/scheduled-sessions", d.Scheduled.Schedule)
	recruiter.GET("/scheduled-sessions/:session_id", d.Scheduled.Get)
	recruiter.POST("/scheduled-sessions/:session_id/cancel", d.Scheduled.Cancel)

	admin := portal.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/sessions/:session_id/reset-attempts", d.Session.ResetAttempts)
	admin.POST("/scheduled-sessions/sweep", d.Scheduled.Sweep)
}
