package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/damagegraph-backend/internal/data/graph"
	"github.com/yungbote/damagegraph-backend/internal/domain/temporal"
	"github.com/yungbote/damagegraph-backend/internal/http/response"
	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/services"
)

type DamageHandler struct {
	log            *logger.Logger
	svc            services.DamageGraphService
	maxUploadBytes int64
}

func NewDamageHandler(log *logger.Logger, svc services.DamageGraphService, maxUploadBytes int64) *DamageHandler {
	return &DamageHandler{
		log:            log.With("handler", "DamageHandler"),
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
	}
}

type uploadResponse struct {
	Status               string                             `json:"status"`
	DamageNodesCreated   int                                `json:"damage_nodes_created"`
	EpochNodesCreated    int                                `json:"epoch_nodes_created"`
	NodesCreated         int                                `json:"nodes_created"`
	RelationshipsCreated int                                `json:"relationships_created"`
	DamageIDs            []string                           `json:"damage_ids"`
	Invalid              []*temporal.InvalidDamageStructure `json:"invalid"`
}

// POST /api/damages/upload
func (h *DamageHandler) Upload(c *gin.Context) {
	raw, filename, err := readPart(c, "file", h.maxUploadBytes, true, ".json")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	doc, err := temporal.DecodeDocument(bytes.NewReader(raw))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}
	// An empty policy defers to the service default.
	var policy graph.InvalidPolicy
	if raw := c.Query("invalid_policy"); raw != "" {
		if policy, err = graph.ParseInvalidPolicy(raw); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_policy", err)
			return
		}
	}
	replace, err := queryBool(c, "replace_epochs")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_query", err)
		return
	}

	report, err := h.svc.Ingest(c.Request.Context(), services.IngestRequest{
		Document:      doc,
		Policy:        policy,
		ReplaceEpochs: replace,
		Source:        source(c, filename),
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	invalid := report.Invalid
	if invalid == nil {
		invalid = []*temporal.InvalidDamageStructure{}
	}
	ids := report.DamageIDs
	if ids == nil {
		ids = []string{}
	}
	response.RespondOK(c, uploadResponse{
		Status:               "success",
		DamageNodesCreated:   report.DamageNodesMerged,
		EpochNodesCreated:    report.EpochNodesCreated,
		NodesCreated:         report.NodesCreated(),
		RelationshipsCreated: report.RelationshipsCreated(),
		DamageIDs:            ids,
		Invalid:              invalid,
	})
}

// GET /api/damages/:id
func (h *DamageHandler) GetTimeline(c *gin.Context) {
	id, ok := damageID(c)
	if !ok {
		return
	}
	tl, err := h.svc.Timeline(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, tl)
}

// DELETE /api/damages/:id/epochs
func (h *DamageHandler) ClearEpochs(c *gin.Context) {
	id, ok := damageID(c)
	if !ok {
		return
	}
	n, err := h.svc.ClearEpochs(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "cleared", "id": id, "epochs_removed": n})
}

// DELETE /api/damages/:id
func (h *DamageHandler) Delete(c *gin.Context) {
	id, ok := damageID(c)
	if !ok {
		return
	}
	n, err := h.svc.Delete(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "deleted", "id": id, "epochs_removed": n})
}

type relateRequest struct {
	SourceID     string `json:"source_id" binding:"required"`
	TargetID     string `json:"target_id" binding:"required"`
	RelationType string `json:"relation_type" binding:"required"`
}

// POST /api/damages/relate
func (h *DamageHandler) Relate(c *gin.Context) {
	var req relateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	source, target := strings.TrimSpace(req.SourceID), strings.TrimSpace(req.TargetID)
	if source == "" || target == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("relationship fields cannot be empty"))
		return
	}
	rel, err := graph.ParseDamageRelType(req.RelationType)
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_relationship", err))
		return
	}
	if err := h.svc.Relate(c.Request.Context(), source, target, rel); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"status":   "relationship_created",
		"source":   source,
		"relation": string(rel),
		"target":   target,
	})
}

func damageID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("id cannot be empty"))
		return "", false
	}
	return id, true
}

func queryBool(c *gin.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
