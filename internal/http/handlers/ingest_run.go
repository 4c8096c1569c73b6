package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/damagegraph-backend/internal/http/response"
	"github.com/yungbote/damagegraph-backend/internal/services"
)

type IngestRunHandler struct {
	audit *services.AuditRecorder
}

func NewIngestRunHandler(audit *services.AuditRecorder) *IngestRunHandler {
	return &IngestRunHandler{audit: audit}
}

// GET /api/ingest-runs?kind=timeline&limit=50
func (h *IngestRunHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_query", err)
			return
		}
		limit = n
	}
	runs, err := h.audit.Recent(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "audit_unavailable", err)
		return
	}
	response.RespondOK(c, gin.H{"enabled": h.audit.Enabled(), "runs": runs})
}
