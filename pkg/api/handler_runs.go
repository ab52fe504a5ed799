package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type createRunRequest struct {
	WorkflowID string `json:"workflow_id" binding:"required"`
	InputData  any    `json:"input_data"`
	SessionID  string `json:"session_id"`
}

// createRunHandler handles POST /runs.
func (s *Server) createRunHandler(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID, err := s.Executor.ExecuteWorkflow(req.WorkflowID, req.InputData, req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  sessionID,
		"workflow_id": req.WorkflowID,
		"status":      "running",
		"created_at":  time.Now().UTC(),
		"stream_url":  fmt.Sprintf("/runs/%s/stream", sessionID),
		"session_url": fmt.Sprintf("/sessions/%s", sessionID),
	})
}

// runStatusHandler handles GET /runs/{session_id}/status.
func (s *Server) runStatusHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	sp, ok := s.Progress.Get(sessionID)
	status := "not_found"
	if ok {
		status = sp.Status
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     status,
		"timestamp":  time.Now().UTC(),
	})
}

// cancelRunHandler handles POST /runs/{session_id}/cancel.
func (s *Server) cancelRunHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := s.Executor.CancelWorkflow(sessionID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"status":     "cancelled",
		"timestamp":  time.Now().UTC(),
	})
}

// streamRunHandler handles GET /runs/{session_id}/stream: an SSE stream
// honoring Last-Event-ID for replay, framed "id/event/data" per event, ended
// by the broadcaster's completion sentinel (§4.3, §6).
func (s *Server) streamRunHandler(c *gin.Context) {
	sessionID := c.Param("session_id")
	lastEventID := c.GetHeader("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = c.Query("last_event_id")
	}

	ch, unsubscribe := s.Broadcaster.Subscribe(sessionID, lastEventID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher, canFlush := c.Writer.(http.Flusher)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Done {
				fmt.Fprintf(c.Writer, "event: done\ndata: {}\n\n")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			data, err := json.Marshal(msg.Event.Payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", msg.Event.ID, msg.Event.Type, data)
			if canFlush {
				flusher.Flush()
			}
		}
	}
}
