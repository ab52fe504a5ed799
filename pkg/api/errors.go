package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridianflow/meridian/pkg/artifact"
	"github.com/meridianflow/meridian/pkg/checkpoint"
	"github.com/meridianflow/meridian/pkg/executor"
	"github.com/meridianflow/meridian/pkg/registry"
)

// writeError maps a domain error to an HTTP status + {"error": ...} body,
// following the status contract named per-resource in the external
// interfaces section: 404 for unknown ids, 400 for validation/in-use
// failures, 409 for state conflicts, 500 otherwise.
func writeError(c *gin.Context, err error) {
	var notFound *registry.NotFoundError
	var validation *registry.ValidationError
	var inUse *registry.InUseError
	var cpNotFound *checkpoint.NotFoundError
	var cpState *checkpoint.StateError
	var notRunning *executor.NotRunningError

	switch {
	case errors.Is(err, artifact.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notFound), errors.As(err, &cpNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &notRunning):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validation), errors.As(err, &inUse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &cpState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
