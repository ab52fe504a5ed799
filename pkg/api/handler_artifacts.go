package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) listArtifactsHandler(c *gin.Context) {
	ids, err := s.Artifacts.ListAllArtifacts()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": ids})
}

type saveArtifactVersionRequest struct {
	ArtifactID    string         `json:"artifact_id" binding:"required"`
	Content       any            `json:"content"`
	ParentVersion *int           `json:"parent_version"`
	Metadata      map[string]any `json:"metadata"`
	Tags          []string       `json:"tags"`
}

func (s *Server) saveArtifactVersionHandler(c *gin.Context) {
	var req saveArtifactVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	version, err := s.Artifacts.Save(req.ArtifactID, req.Content, req.ParentVersion, req.Metadata, req.Tags)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"artifact_id": req.ArtifactID, "version": version})
}

func (s *Server) listArtifactVersionsHandler(c *gin.Context) {
	versions, err := s.Artifacts.ListVersions(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_id": c.Param("id"), "versions": versions})
}

func (s *Server) getLatestArtifactVersionHandler(c *gin.Context) {
	content, meta, err := s.Artifacts.Get(c.Param("id"), nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_id": c.Param("id"), "content": content, "meta": meta})
}

func (s *Server) getArtifactVersionHandler(c *gin.Context) {
	v, err := strconv.Atoi(c.Param("v"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
		return
	}
	content, meta, err := s.Artifacts.Get(c.Param("id"), &v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_id": c.Param("id"), "content": content, "meta": meta})
}

func (s *Server) deleteArtifactVersionHandler(c *gin.Context) {
	v, err := strconv.Atoi(c.Param("v"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
		return
	}
	if err := s.Artifacts.DeleteVersion(c.Param("id"), v); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getArtifactLineageHandler(c *gin.Context) {
	v, err := strconv.Atoi(c.Param("v"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer"})
		return
	}
	chain, err := s.Artifacts.GetVersionLineage(c.Param("id"), v)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_id": c.Param("id"), "lineage": chain})
}

func (s *Server) applyVersionLimitHandler(c *gin.Context) {
	max, err := strconv.Atoi(c.DefaultQuery("max_versions", "0"))
	if err != nil || max <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_versions must be a positive integer"})
		return
	}
	deleted, err := s.Artifacts.ApplyVersionLimit(c.Param("id"), max)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifact_id": c.Param("id"), "deleted_versions": deleted})
}
