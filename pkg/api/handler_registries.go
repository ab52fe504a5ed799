package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/registry"
)

// --- agents ---

func (s *Server) listAgentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.ListAgents(c.Query("capability")))
}

func (s *Server) getAgentHandler(c *gin.Context) {
	a, err := s.Registry.GetAgent(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) createAgentHandler(c *gin.Context) {
	var a registry.Agent
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Registry.PutAgent(&a); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) updateAgentHandler(c *gin.Context) {
	var a registry.Agent
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.ID = c.Param("id")
	if err := s.Registry.PutAgent(&a); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) deleteAgentHandler(c *gin.Context) {
	if err := s.Registry.DeleteAgent(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- tools ---

func (s *Server) listToolsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.ListTools(c.Query("tag")))
}

func (s *Server) getToolHandler(c *gin.Context) {
	t, err := s.Registry.GetTool(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) createToolHandler(c *gin.Context) {
	var t registry.Tool
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Registry.PutTool(&t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateToolHandler(c *gin.Context) {
	var t registry.Tool
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t.ID = c.Param("id")
	if err := s.Registry.PutTool(&t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteToolHandler(c *gin.Context) {
	if err := s.Registry.DeleteTool(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- model profiles ---

func (s *Server) listModelProfilesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.ListModelProfiles())
}

func (s *Server) getModelProfileHandler(c *gin.Context) {
	m, err := s.Registry.GetModelProfile(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) createModelProfileHandler(c *gin.Context) {
	var m registry.ModelProfile
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Registry.PutModelProfile(&m); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) updateModelProfileHandler(c *gin.Context) {
	var m registry.ModelProfile
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.ID = c.Param("id")
	if err := s.Registry.PutModelProfile(&m); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteModelProfileHandler(c *gin.Context) {
	if err := s.Registry.DeleteModelProfile(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- workflows ---

func (s *Server) listWorkflowsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.ListWorkflows())
}

func (s *Server) getWorkflowHandler(c *gin.Context) {
	w, err := s.Registry.GetWorkflow(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) createWorkflowHandler(c *gin.Context) {
	var w registry.Workflow
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Registry.PutWorkflow(&w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) updateWorkflowHandler(c *gin.Context) {
	var w registry.Workflow
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w.ID = c.Param("id")
	if err := s.Registry.PutWorkflow(&w); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) deleteWorkflowHandler(c *gin.Context) {
	if err := s.Registry.DeleteWorkflow(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- orchestrator / governance / system-config / reload ---

func (s *Server) getOrchestratorHandler(c *gin.Context) {
	a, err := s.Registry.GetOrchestratorAgent()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) updateOrchestratorHandler(c *gin.Context) {
	var a registry.Agent
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.IsOrchestrator = true
	if existing, err := s.Registry.GetOrchestratorAgent(); err == nil && a.ID == "" {
		a.ID = existing.ID
	}
	if err := s.Registry.PutAgent(&a); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) getGovernanceHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.Registry.Governance())
}

func (s *Server) updateGovernanceHandler(c *gin.Context) {
	var g registry.GovernancePolicy
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.Registry.PutGovernance(g); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) getSystemConfigHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.SystemCfg)
}

func (s *Server) reloadRegistryHandler(c *gin.Context) {
	if err := s.Registry.LoadAll(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true})
}
