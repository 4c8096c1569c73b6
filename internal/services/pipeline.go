package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/damagegraph-backend/internal/bim"
	"github.com/yungbote/damagegraph-backend/internal/bim/ifc"
	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/ontology"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

// PipelineService runs the detection -> ontology -> BIM stages in memory.
type PipelineService interface {
	Project(ctx context.Context, dets []damage.Detection, source string) (*ontology.Snapshot, error)
	Link(ctx context.Context, dets []damage.Detection, model *ifc.Model, source string) (*LinkResult, error)
	// LinkOntology links a previously saved ontology graph instead of projecting detections.
	LinkOntology(ctx context.Context, g *rdf.Graph, model *ifc.Model, source string) (*LinkResult, error)
}

// LinkResult carries the projection when the link started from detections; Snapshot is nil
// for LinkOntology.
type LinkResult struct {
	Snapshot *ontology.Snapshot
	Report   *bim.LinkReport
}

type pipelineService struct {
	log     *logger.Logger
	opts    ontology.Options
	audit   *AuditRecorder
	metrics *observability.Metrics
}

func NewPipelineService(baseLog *logger.Logger, opts ontology.Options, audit *AuditRecorder, metrics *observability.Metrics) PipelineService {
	return &pipelineService{
		log:     baseLog.With("service", "PipelineService"),
		opts:    opts,
		audit:   audit,
		metrics: metrics,
	}
}

type projectSummary struct {
	Damages   int                          `json:"damages"`
	Elements  int                          `json:"elements"`
	Triples   int                          `json:"triples"`
	Malformed []*damage.MalformedDetection `json:"malformed"`
}

func (s *pipelineService) Project(ctx context.Context, dets []damage.Detection, source string) (*ontology.Snapshot, error) {
	start := time.Now()
	_, span := observability.StartSpan(ctx, "damagegraph.project", attribute.Int("detections", len(dets)))
	snap := ontology.NewProjector(s.log, s.opts).Project(dets)
	observability.EndSpan(span, nil)

	s.metrics.ObserveProjection(len(snap.Damages), len(snap.Malformed))
	dur := time.Since(start)
	s.metrics.ObservePipeline(ingest.KindProject, ingest.StatusSucceeded, dur)
	s.audit.Record(ctx, &ingest.IngestRun{
		Kind:       ingest.KindProject,
		Status:     ingest.StatusSucceeded,
		Source:     source,
		TraceID:    traceID(ctx),
		Accepted:   len(snap.Damages),
		Rejected:   len(snap.Malformed),
		DurationMS: dur.Milliseconds(),
	}, projectSummary{
		Damages:   len(snap.Damages),
		Elements:  len(snap.Elements),
		Triples:   snap.Graph.Len(),
		Malformed: snap.Malformed,
	})
	return snap, nil
}

func (s *pipelineService) Link(ctx context.Context, dets []damage.Detection, model *ifc.Model, source string) (*LinkResult, error) {
	if model == nil {
		return nil, apierr.BadRequest("missing_model", errors.New("no IFC model supplied"))
	}
	snap := ontology.NewProjector(s.log, s.opts).Project(dets)
	s.metrics.ObserveProjection(len(snap.Damages), len(snap.Malformed))

	report, err := s.link(ctx, snap.Graph, model, source, attribute.Int("detections", len(dets)))
	if err != nil {
		return nil, err
	}
	return &LinkResult{Snapshot: snap, Report: report}, nil
}

func (s *pipelineService) LinkOntology(ctx context.Context, g *rdf.Graph, model *ifc.Model, source string) (*LinkResult, error) {
	if model == nil {
		return nil, apierr.BadRequest("missing_model", errors.New("no IFC model supplied"))
	}
	if g == nil || g.Len() == 0 {
		return nil, apierr.BadRequest("missing_ontology", errors.New("ontology graph is empty"))
	}
	report, err := s.link(ctx, g, model, source, attribute.Int("triples", g.Len()))
	if err != nil {
		return nil, err
	}
	return &LinkResult{Report: report}, nil
}

func (s *pipelineService) link(ctx context.Context, g *rdf.Graph, model *ifc.Model, source string, attrs ...attribute.KeyValue) (report *bim.LinkReport, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "damagegraph.link", attrs...)
	defer func() { observability.EndSpan(span, err) }()

	report, err = bim.NewLinker(s.log).Link(g, model)
	status := ingest.StatusSucceeded
	if err != nil {
		status = ingest.StatusFailed
	}
	dur := time.Since(start)
	s.metrics.ObservePipeline(ingest.KindLink, status, dur)

	run := &ingest.IngestRun{
		Kind:       ingest.KindLink,
		Status:     status,
		Source:     source,
		TraceID:    traceID(ctx),
		DurationMS: dur.Milliseconds(),
	}
	if err != nil {
		run.Error = err.Error()
		s.audit.Record(ctx, run, nil)
		return nil, err
	}
	s.metrics.ObserveLink(report.CreatedProxyCount, len(report.Unresolved), len(report.Failed))
	run.Accepted = report.CreatedProxyCount
	run.Rejected = len(report.Unresolved) + len(report.Failed)
	s.audit.Record(ctx, run, report)
	return report, nil
}
