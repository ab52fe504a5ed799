package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/checkpoint"
)

func (s *Server) pendingCheckpointsHandler(c *gin.Context) {
	pending := s.Checkpoints.GetPendingCheckpoints(c.Query("user_role"), c.Query("workflow_id"))
	if s.Metrics != nil {
		s.Metrics.CheckpointsPending.Set(float64(len(pending)))
	}
	c.JSON(http.StatusOK, pending)
}

func (s *Server) getCheckpointHandler(c *gin.Context) {
	inst, err := s.Checkpoints.GetCheckpoint(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

type resolveCheckpointRequest struct {
	Action      string         `json:"action" binding:"required"`
	UserID      string         `json:"user_id" binding:"required"`
	UserRole    string         `json:"user_role" binding:"required"`
	Comments    string         `json:"comments"`
	DataUpdates map[string]any `json:"data_updates"`
}

// resolveCheckpointHandler handles POST /checkpoints/{id}/resolve. The role
// check happens here, at the transport boundary, rather than in the
// Manager: the Manager's job is the pending->resolved state machine, not
// authorization (§6).
func (s *Server) resolveCheckpointHandler(c *gin.Context) {
	id := c.Param("id")
	var req resolveCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inst, err := s.Checkpoints.GetCheckpoint(id)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.UserRole != "admin" && inst.Config.RequiredRole != "" && inst.Config.RequiredRole != req.UserRole {
		c.JSON(http.StatusForbidden, gin.H{"error": "user_role does not match the checkpoint's required_role"})
		return
	}

	resolved, err := s.Checkpoints.ResolveCheckpoint(id, checkpoint.Resolution{
		Action:      req.Action,
		ResolvedBy:  req.UserID,
		Comment:     req.Comments,
		DataUpdates: req.DataUpdates,
		ResolvedAt:  time.Now().UTC(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.CheckpointsResolved.WithLabelValues(req.Action).Inc()
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) cancelCheckpointHandler(c *gin.Context) {
	if c.Query("user_role") != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admin may cancel a checkpoint"})
		return
	}
	resolved, err := s.Checkpoints.CancelCheckpoint(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) sessionCheckpointsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Checkpoints.GetSessionCheckpoints(c.Param("session_id")))
}
