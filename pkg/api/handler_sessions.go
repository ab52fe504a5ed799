package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/contextpipeline"
)

// listSessionsHandler handles GET /sessions (pagination via limit/offset
// over the Progress Store's sessions currently marked running; finished
// sessions are not listed).
func (s *Server) listSessionsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = 50
	}

	ids := s.Progress.RunningSessions()
	sort.Strings(ids)

	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		sp, ok := s.Progress.Get(id)
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"session_id":  id,
			"workflow_id": sp.WorkflowID,
			"status":      sp.Status,
			"created_at":  sp.CreatedAt,
			"updated_at":  sp.UpdatedAt,
		})
	}

	if offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out[offset:end], "total": len(out)})
}

// getSessionHandler handles GET /sessions/{id} — the durable event list from
// the Event Log, optionally filtered by event_type.
func (s *Server) getSessionHandler(c *gin.Context) {
	id := c.Param("id")
	evs, err := s.EventLog.Read(id)
	if err != nil {
		writeError(c, err)
		return
	}

	if filter := c.Query("event_type"); filter != "" {
		filtered := evs[:0]
		for _, ev := range evs {
			if ev.Type == filter {
				filtered = append(filtered, ev)
			}
		}
		evs = filtered
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "events": evs})
}

// getSessionEvidenceHandler handles GET /sessions/{id}/evidence.
func (s *Server) getSessionEvidenceHandler(c *gin.Context) {
	id := c.Param("id")
	content, _, err := s.Artifacts.Get(id+"_evidence_map", nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "evidence_map": content})
}

// getSessionEventsByTypeHandler handles GET /sessions/{id}/events/{event_type}.
func (s *Server) getSessionEventsByTypeHandler(c *gin.Context) {
	id := c.Param("id")
	eventType := c.Param("event_type")
	evs, err := s.EventLog.Read(id)
	if err != nil {
		writeError(c, err)
		return
	}
	var matched = evs[:0]
	for _, ev := range evs {
		if ev.Type == eventType {
			matched = append(matched, ev)
		}
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "event_type": eventType, "events": matched})
}

// deleteSessionHandler handles DELETE /sessions/{id}: removes the session's
// event log file, evidence-map artifact, and any compaction archives. A
// missing evidence map or archive is not an error — most sessions never
// produce one.
func (s *Server) deleteSessionHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.EventLog.Delete(id); err != nil {
		writeError(c, err)
		return
	}
	if versions, err := s.Artifacts.ListVersions(id + "_evidence_map"); err == nil {
		for _, v := range versions {
			_ = s.Artifacts.DeleteVersion(id+"_evidence_map", v)
		}
	}
	if s.Compaction != nil {
		_ = s.Compaction.RemoveArchives(id)
	}
	s.Progress.Remove(id)
	s.Broadcaster.Forget(id)
	c.JSON(http.StatusOK, gin.H{"session_id": id, "deleted": true})
}

type triggerCompactionRequest struct {
	AgentID      string                         `json:"agent_id" binding:"required"`
	Observations []contextpipeline.Observation  `json:"observations"`
}

// triggerCompactionHandler handles
// POST /sessions/{id}/trigger-compaction?method={rule_based|llm_based},
// running the Compaction Manager synchronously (§4.10).
func (s *Server) triggerCompactionHandler(c *gin.Context) {
	id := c.Param("id")
	method := c.DefaultQuery("method", "rule_based")

	var req triggerCompactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	compacted, summary, err := s.Compaction.Compact(c.Request.Context(), id, req.AgentID, method, req.Observations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "observations": compacted, "summary": summary})
}
