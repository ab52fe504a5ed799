package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/memory"
)

// listMemoryHandler handles GET /memory, a reactive retrieve filtered only by
// the optional memory_type query parameter and capped by limit.
func (s *Server) listMemoryHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := s.Memory.Retrieve(memory.Query{
		Type:  c.Query("memory_type"),
		Limit: limit,
		Mode:  memory.ModeReactive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

type createMemoryRequest struct {
	MemoryType    string         `json:"memory_type" binding:"required"`
	Content       string         `json:"content" binding:"required"`
	Metadata      map[string]any `json:"metadata"`
	Tags          []string       `json:"tags"`
	ExpiresInDays *int           `json:"expires_in_days"`
}

func (s *Server) createMemoryHandler(c *gin.Context) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := s.Memory.Store(req.MemoryType, req.Content, req.Metadata, req.Tags, req.ExpiresInDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) getMemoryHandler(c *gin.Context) {
	records, err := s.Memory.Retrieve(memory.Query{Limit: 0})
	if err != nil {
		writeError(c, err)
		return
	}
	id := c.Param("id")
	for _, r := range records {
		if r.ID == id {
			c.JSON(http.StatusOK, r)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "memory record not found"})
}

func (s *Server) deleteMemoryHandler(c *gin.Context) {
	if err := s.Memory.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type retrieveMemoryRequest struct {
	Text          string   `json:"text"`
	Type          string   `json:"memory_type"`
	Tags          []string `json:"tags"`
	Limit         int      `json:"limit"`
	UseEmbeddings bool     `json:"use_embeddings"`
	Threshold     float64  `json:"threshold"`
}

// retrieveMemoryHandler handles POST /memory/retrieve. A non-empty text
// routes to similarity retrieval (proactive; use_embeddings picks embedding
// over keyword similarity); otherwise a reactive filtered retrieve (§4.9).
func (s *Server) retrieveMemoryHandler(c *gin.Context) {
	var req retrieveMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Text != "" {
		threshold := req.Threshold
		if threshold <= 0 {
			threshold = 0.3
		}
		records, err := s.Memory.RetrieveBySimilarity(c.Request.Context(), req.Text, req.Limit, threshold, req.UseEmbeddings)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
		return
	}

	records, err := s.Memory.Retrieve(memory.Query{
		Type:  req.Type,
		Tags:  req.Tags,
		Limit: req.Limit,
		Mode:  memory.ModeReactive,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) applyRetentionHandler(c *gin.Context) {
	removed, err := s.Memory.ApplyRetentionPolicy()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
