package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quiz-session-service/internal/app"
)

// RouterConfig holds the transport knobs that come from configuration.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter wires the session API onto a gin engine.
func NewRouter(service *app.SessionService, logger logrus.FieldLogger, cfg RouterConfig) *gin.Engine {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", UserHeader},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := NewSessionHandler(service)
	api := r.Group("/api/v1", RequireUser())
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/code/:code", h.GetSessionByCode)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.POST("/sessions/:id/activate", h.ActivateSession)
		api.POST("/sessions/:id/end", h.EndSession)
		api.GET("/sessions/:id/participants", h.ListParticipants)
		api.POST("/sessions/:id/submissions", h.SubmitAnswers)
		api.GET("/sessions/:id/ranking", h.GetRanking)
		api.GET("/sessions/:id/review/:studentId", h.GetReview)
		api.POST("/join", h.JoinSession)
	}
	return r
}
