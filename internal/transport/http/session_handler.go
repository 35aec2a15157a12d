package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// SessionHandler exposes the session use cases over JSON. The caller's identity
// comes from RequireUser.
type SessionHandler struct {
	service *app.SessionService
}

func NewSessionHandler(service *app.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type createSessionRequest struct {
	QuizID          string `json:"quizId" binding:"required"`
	DurationMinutes int    `json:"durationMinutes"`
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

type submitRequest struct {
	Answers []domain.AnswerRecord `json:"answers"`
}

type submitResponse struct {
	SessionID string `json:"sessionId"`
	StudentID string `json:"studentId"`
	Score     int    `json:"score"`
}

type participantsResponse struct {
	SessionID    string               `json:"sessionId"`
	Participants []domain.Participant `json:"participants"`
}

type reviewResponse struct {
	SessionID string               `json:"sessionId"`
	StudentID string               `json:"studentId"`
	Entries   []domain.ReviewEntry `json:"entries"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), req.QuizID, currentUser(c), req.DurationMinutes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) GetSessionByCode(c *gin.Context) {
	session, err := h.service.GetSessionByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) ActivateSession(c *gin.Context) {
	session, err := h.service.ActivateSession(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	session, err := h.service.EndSession(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	participant, err := h.service.JoinSession(c.Request.Context(), req.Code, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) ListParticipants(c *gin.Context) {
	sessionID := c.Param("id")
	participants, err := h.service.ListParticipants(c.Request.Context(), sessionID, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participantsResponse{SessionID: sessionID, Participants: participants})
}

func (h *SessionHandler) SubmitAnswers(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sessionID, studentID := c.Param("id"), currentUser(c)
	score, err := h.service.SubmitAnswers(c.Request.Context(), sessionID, studentID, req.Answers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, submitResponse{SessionID: sessionID, StudentID: studentID, Score: score})
}

func (h *SessionHandler) GetRanking(c *gin.Context) {
	ranking, err := h.service.GetRanking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

func (h *SessionHandler) GetReview(c *gin.Context) {
	sessionID, studentID := c.Param("id"), c.Param("studentId")
	entries, err := h.service.GetReview(c.Request.Context(), sessionID, currentUser(c), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResponse{SessionID: sessionID, StudentID: studentID, Entries: entries})
}
