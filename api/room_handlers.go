package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RoomHandler exposes the HTTP collaborator surface: service status,
// session listing and session creation.
type RoomHandler struct {
	manager *SessionManager
}

// NewRoomHandler creates the HTTP handler set.
func NewRoomHandler(manager *SessionManager) *RoomHandler {
	return &RoomHandler{manager: manager}
}

// CreateSessionRequest is the body for POST /sessions.
type CreateSessionRequest struct {
	SessionID string    `json:"sessionId"`
	Question  *Question `json:"question"`
}

// GetStatus reports service liveness.
func (h *RoomHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetSessions lists summaries of all live sessions.
func (h *RoomHandler) GetSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.manager.ListSessions()})
}

// PostSessions creates a session, generating an id when none is supplied.
func (h *RoomHandler) PostSessions(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_input", Message: err.Error()})
		return
	}

	session, err := h.manager.CreateSession(req.SessionID, req.Question)
	if err != nil {
		status := "invalid_request"
		if errors.Is(err, ErrSessionExists) {
			status = "session_exists"
		}
		c.JSON(http.StatusBadRequest, Error{Error: status, Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session": session.Summary()})
}
