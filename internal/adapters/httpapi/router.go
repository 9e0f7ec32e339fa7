package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Handler *Handler
	Issuer  *TokenIssuer
	Events  EventSource
	Logger  zerolog.Logger
}

// NewRouter builds the gin engine.
func NewRouter(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(requestLogger(deps.Logger), gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := deps.Handler
	api := engine.Group("/api")
	api.Use(Auth(deps.Issuer))

	api.GET("/focus", h.GetState)
	api.POST("/focus/start", h.Start)
	api.POST("/focus/pause", h.Pause)
	api.POST("/focus/resume", h.Resume)
	api.POST("/focus/stop", h.Stop)
	api.POST("/focus/distractions", h.LogDistraction)
	api.POST("/focus/break", h.TakeBreak)
	api.POST("/focus/break/end", h.EndBreak)
	api.POST("/focus/continue", h.ContinueTask)
	api.POST("/focus/resume-after-break", h.ResumeAfterBreak)
	api.POST("/focus/decline", h.DeclineResume)
	if deps.Events != nil {
		api.GET("/focus/stream", h.Stream(deps.Events, deps.Logger))
	}

	tasks := api.Group("/tasks")
	tasks.GET("", h.ListTasks)
	tasks.POST("", h.CreateTask)
	tasks.GET("/search", h.SearchTasks)
	tasks.GET("/:id", h.GetTask)
	tasks.DELETE("/:id", h.DeleteTask)
	tasks.POST("/:id/complete", h.CompleteTask)
	tasks.GET("/:id/sessions", h.TaskSessions)
	tasks.POST("/:id/steps", h.AddStep)
	tasks.PATCH("/:id/steps/:stepID", h.EditStep)
	tasks.POST("/:id/steps/:stepID/toggle", h.ToggleStep)
	tasks.DELETE("/:id/steps/:stepID", h.RemoveStep)

	api.GET("/sessions", h.RecentSessions)
	api.POST("/sessions/:id/beacon", h.Beacon)
	api.GET("/streak", h.Streak)
	api.GET("/settings", h.Settings)

	return engine
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
