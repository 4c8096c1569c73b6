package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/damagegraph-backend/internal/bim"
	"github.com/yungbote/damagegraph-backend/internal/bim/ifc"
	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/http/response"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/services"
)

const (
	headerDamageCount    = "X-Damage-Count"
	headerElementCount   = "X-Element-Count"
	headerMalformedCount = "X-Malformed-Count"
	headerProxyCount     = "X-Created-Proxy-Count"
	headerUnresolved     = "X-Unresolved-Count"
	headerFailed         = "X-Failed-Count"
	headerAlreadyLinked  = "X-Already-Linked-Count"
	// comma separated persistent ids of the elements the model did not contain
	headerUnresolvedIDs  = "X-Unresolved-Elements"
)

type PipelineHandler struct {
	log            *logger.Logger
	svc            services.PipelineService
	maxUploadBytes int64
}

func NewPipelineHandler(log *logger.Logger, svc services.PipelineService, maxUploadBytes int64) *PipelineHandler {
	return &PipelineHandler{
		log:            log.With("handler", "PipelineHandler"),
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
	}
}

// POST /api/detections/project
func (h *PipelineHandler) Project(c *gin.Context) {
	format, err := rdf.ParseFormat(c.DefaultQuery("format", string(rdf.FormatTurtle)))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_format", err)
		return
	}
	raw, filename, err := readPart(c, "detections", h.maxUploadBytes, true, ".json")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	dets, err := damage.DecodeInference(bytes.NewReader(raw))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
		return
	}

	snap, err := h.svc.Project(c.Request.Context(), dets, source(c, filename))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := snap.Serialize(format)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "serialize_failed", err)
		return
	}
	c.Header(headerDamageCount, strconv.Itoa(len(snap.Damages)))
	c.Header(headerElementCount, strconv.Itoa(len(snap.Elements)))
	c.Header(headerMalformedCount, strconv.Itoa(len(snap.Malformed)))
	c.Data(http.StatusOK, format.ContentType()+"; charset=utf-8", []byte(out))
}

// POST /api/bim/link
//
// Multipart fields: model (.ifc) and either detections (.json) or one or more ontology (.nt)
// files, merged before linking.
func (h *PipelineHandler) Link(c *gin.Context) {
	rawModel, modelName, err := readPart(c, "model", h.maxUploadBytes, false, ".ifc")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	model, err := ifc.Parse(bytes.NewReader(rawModel))
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_ifc", err))
		return
	}

	var res *services.LinkResult
	if files := formFiles(c, "ontology"); len(files) > 0 {
		g, gerr := readOntology(files)
		if gerr != nil {
			response.RespondAPIError(c, gerr)
			return
		}
		res, err = h.svc.LinkOntology(c.Request.Context(), g, model, modelName)
	} else {
		rawDets, _, derr := readPart(c, "detections", h.maxUploadBytes, false, ".json")
		if derr != nil {
			response.RespondAPIError(c, derr)
			return
		}
		dets, derr := damage.DecodeInference(bytes.NewReader(rawDets))
		if derr != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_json", derr)
			return
		}
		res, err = h.svc.Link(c.Request.Context(), dets, model, modelName)
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := model.Write(&buf); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "ifc_write_failed", err)
		return
	}
	if res.Snapshot != nil {
		c.Header(headerDamageCount, strconv.Itoa(len(res.Snapshot.Damages)))
		c.Header(headerMalformedCount, strconv.Itoa(len(res.Snapshot.Malformed)))
	}
	c.Header(headerProxyCount, strconv.Itoa(res.Report.CreatedProxyCount))
	c.Header(headerUnresolved, strconv.Itoa(len(res.Report.Unresolved)))
	c.Header(headerFailed, strconv.Itoa(len(res.Report.Failed)))
	c.Header(headerAlreadyLinked, strconv.Itoa(len(res.Report.AlreadyLinked)))
	if ids := unresolvedIDs(res.Report); len(ids) > 0 {
		c.Header(headerUnresolvedIDs, strings.Join(ids, ","))
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", linkedName(modelName)))
	c.Data(http.StatusOK, "application/x-step", buf.Bytes())
}

func formFiles(c *gin.Context, field string) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File[field]
}

// readOntology parses every uploaded N-Triples file and merges them into one graph.
func readOntology(files []*multipart.FileHeader) (*rdf.Graph, error) {
	merged := rdf.NewGraph()
	for _, fh := range files {
		if !hasExt(fh.Filename, []string{".nt"}) {
			return nil, apierr.BadRequest("unsupported_file_type",
				fmt.Errorf("%s: ontology files must be N-Triples (.nt)", fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			return nil, uploadError(err)
		}
		g, err := rdf.ParseNTriples(f)
		f.Close()
		if err != nil {
			return nil, apierr.BadRequest("invalid_ontology", fmt.Errorf("%s: %w", fh.Filename, err))
		}
		merged.Merge(g)
	}
	return merged, nil
}

// unresolvedIDs lists the missing elements once each, by persistent id or element URI.
func unresolvedIDs(report *bim.LinkReport) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range report.Unresolved {
		id := u.PersistentID
		if id == "" {
			id = u.ElementURI
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func linkedName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "model"
	}
	return base + "_with_damage.ifc"
}
