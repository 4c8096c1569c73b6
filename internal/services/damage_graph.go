package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	redisclient "github.com/yungbote/damagegraph-backend/internal/clients/redis"
	"github.com/yungbote/damagegraph-backend/internal/data/graph"
	"github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/domain/temporal"
	"github.com/yungbote/damagegraph-backend/internal/observability"
	"github.com/yungbote/damagegraph-backend/internal/platform/apierr"
	"github.com/yungbote/damagegraph-backend/internal/platform/ctxutil"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
	"github.com/yungbote/damagegraph-backend/internal/platform/neo4jdb"
)

// GraphStore hands out request-scoped runners. *neo4jdb.Client implements it.
type GraphStore interface {
	WithSession(ctx context.Context, write bool, fn func(neo4jdb.Runner) error) error
	ExecuteWrite(ctx context.Context, fn func(neo4jdb.Runner) error) error
}

type DamageGraphConfig struct {
	// Atomic wraps each ingest in one managed write transaction.
	Atomic        bool
	DefaultPolicy graph.InvalidPolicy
}

type IngestRequest struct {
	Document      *temporal.Document
	Policy        graph.InvalidPolicy
	ReplaceEpochs bool
	Source        string
}

type DamageGraphService interface {
	EnsureSchema(ctx context.Context)
	Ingest(ctx context.Context, req IngestRequest) (*graph.IngestReport, error)
	Timeline(ctx context.Context, damageID string) (*graph.DamageTimeline, error)
	ClearEpochs(ctx context.Context, damageID string) (int, error)
	Delete(ctx context.Context, damageID string) (int, error)
	Relate(ctx context.Context, source, target string, rel graph.RelType) error
}

type damageGraphService struct {
	log     *logger.Logger
	store   GraphStore
	locker  redisclient.DamageLocker
	events  redisclient.EventBus
	audit   *AuditRecorder
	metrics *observability.Metrics
	cfg     DamageGraphConfig
}

func NewDamageGraphService(
	baseLog *logger.Logger,
	store GraphStore,
	locker redisclient.DamageLocker,
	events redisclient.EventBus,
	audit *AuditRecorder,
	metrics *observability.Metrics,
	cfg DamageGraphConfig,
) DamageGraphService {
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if events == nil {
		events = redisclient.NoopBus{}
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = graph.PolicyAbort
	}
	return &damageGraphService{
		log:     baseLog.With("service", "DamageGraphService"),
		store:   store,
		locker:  locker,
		events:  events,
		audit:   audit,
		metrics: metrics,
		cfg:     cfg,
	}
}

func (s *damageGraphService) EnsureSchema(ctx context.Context) {
	if s.store == nil {
		return
	}
	err := s.store.WithSession(ctx, true, func(r neo4jdb.Runner) error {
		graph.EnsureDamageSchema(ctx, r, s.log)
		return nil
	})
	if err != nil {
		s.log.Warn("damage schema setup skipped", "error", err)
	}
}

func (s *damageGraphService) Ingest(ctx context.Context, req IngestRequest) (report *graph.IngestReport, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "damagegraph.ingest",
		attribute.String("source", req.Source),
		attribute.Bool("replace_epochs", req.ReplaceEpochs),
	)
	defer func() { observability.EndSpan(span, err) }()

	if req.Document == nil {
		return nil, apierr.BadRequest("missing_document", errors.New("no timeline document"))
	}
	if s.store == nil {
		return nil, apierr.Unavailable("graph_unavailable", errors.New("graph store is not configured"))
	}
	policy := req.Policy
	if policy == "" {
		policy = s.cfg.DefaultPolicy
	}
	opts := graph.IngestOptions{Policy: policy, ReplaceEpochs: req.ReplaceEpochs}

	records, invalid := req.Document.Validate()
	if len(invalid) > 0 && policy == graph.PolicyAbort {
		first := invalid[0]
		s.finish(ctx, req, start, ingest.StatusRejected, &graph.IngestReport{Invalid: invalid}, first)
		return nil, apierr.BadRequest("invalid_damage_structure", first).WithDetail("key", first.Key)
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.DamageID)
	}
	release, err := s.locker.Acquire(ctx, ids)
	if err != nil {
		if errors.Is(err, redisclient.ErrLocked) {
			s.metrics.IncLockContention()
			s.finish(ctx, req, start, ingest.StatusRejected, nil, err)
			return nil, apierr.Conflict("damage_locked", err)
		}
		s.metrics.IncStoreError("redis", "lock")
		s.finish(ctx, req, start, ingest.StatusFailed, nil, err)
		return nil, apierr.Unavailable("lock_unavailable", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Warn("damage lock release failed", "error", rerr)
		}
	}()

	run := func(r neo4jdb.Runner) error {
		var ierr error
		report, ierr = graph.IngestDamageTimeline(ctx, r, s.log.With(ctxutil.LogFields(ctx)...), req.Document, opts)
		return ierr
	}
	if s.cfg.Atomic {
		err = s.store.ExecuteWrite(ctx, run)
	} else {
		err = s.store.WithSession(ctx, true, run)
	}
	if err != nil {
		s.finish(ctx, req, start, ingest.StatusFailed, report, err)
		return nil, s.mapGraphError("ingest", err)
	}

	ctxutil.AddDamageIDs(ctx, report.DamageIDs...)
	s.metrics.ObserveGraphWrites(report.DamageNodesMerged, report.EpochNodesCreated, report.RelationshipsCreated(), len(report.Invalid))
	s.finish(ctx, req, start, ingest.StatusSucceeded, report, nil)
	if perr := s.events.Publish(ctx, redisclient.DamageEvent{
		Kind:      "ingest",
		DamageIDs: report.DamageIDs,
		TraceID:   traceID(ctx),
	}); perr != nil {
		s.log.Warn("damage event publish failed", "error", perr)
	}
	return report, nil
}

func (s *damageGraphService) finish(ctx context.Context, req IngestRequest, start time.Time, status string, report *graph.IngestReport, cause error) {
	dur := time.Since(start)
	s.metrics.ObservePipeline(ingest.KindTimeline, status, dur)

	run := &ingest.IngestRun{
		Kind:       ingest.KindTimeline,
		Status:     status,
		Source:     req.Source,
		TraceID:    traceID(ctx),
		DurationMS: dur.Milliseconds(),
	}
	if report != nil {
		run.Accepted = len(report.DamageIDs)
		run.Rejected = len(report.Invalid)
		if len(report.DamageIDs) == 1 {
			run.Subject = report.DamageIDs[0]
		}
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	s.audit.Record(ctx, run, report)
}

func (s *damageGraphService) Timeline(ctx context.Context, damageID string) (*graph.DamageTimeline, error) {
	if s.store == nil {
		return nil, apierr.Unavailable("graph_unavailable", errors.New("graph store is not configured"))
	}
	var out *graph.DamageTimeline
	err := s.store.WithSession(ctx, false, func(r neo4jdb.Runner) error {
		var terr error
		out, terr = graph.GetDamageTimeline(ctx, r, damageID)
		return terr
	})
	if err != nil {
		return nil, s.mapGraphError("timeline", err)
	}
	return out, nil
}

func (s *damageGraphService) ClearEpochs(ctx context.Context, damageID string) (int, error) {
	return s.write(ctx, "clear_epochs", damageID, func(r neo4jdb.Runner) (int, error) {
		return graph.ClearDamageEpochs(ctx, r, damageID)
	})
}

func (s *damageGraphService) Delete(ctx context.Context, damageID string) (int, error) {
	return s.write(ctx, "delete", damageID, func(r neo4jdb.Runner) (int, error) {
		return graph.DeleteDamage(ctx, r, damageID)
	})
}

func (s *damageGraphService) write(ctx context.Context, op, damageID string, fn func(neo4jdb.Runner) (int, error)) (int, error) {
	if s.store == nil {
		return 0, apierr.Unavailable("graph_unavailable", errors.New("graph store is not configured"))
	}
	release, err := s.locker.Acquire(ctx, []string{damageID})
	if err != nil {
		if errors.Is(err, redisclient.ErrLocked) {
			s.metrics.IncLockContention()
			return 0, apierr.Conflict("damage_locked", err)
		}
		return 0, apierr.Unavailable("lock_unavailable", err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.log.Warn("damage lock release failed", "op", op, "damage_id", damageID, "error", rerr)
		}
	}()

	var n int
	err = s.store.WithSession(ctx, true, func(r neo4jdb.Runner) error {
		var werr error
		n, werr = fn(r)
		return werr
	})
	if err != nil {
		return 0, s.mapGraphError(op, err)
	}
	s.log.Info("damage graph updated", "op", op, "damage_id", damageID, "epochs_removed", n)
	if perr := s.events.Publish(ctx, redisclient.DamageEvent{Kind: op, DamageIDs: []string{damageID}, TraceID: traceID(ctx)}); perr != nil {
		s.log.Warn("damage event publish failed", "op", op, "damage_id", damageID, "error", perr)
	}
	return n, nil
}

func (s *damageGraphService) Relate(ctx context.Context, source, target string, rel graph.RelType) error {
	if s.store == nil {
		return apierr.Unavailable("graph_unavailable", errors.New("graph store is not configured"))
	}
	if _, err := graph.ParseDamageRelType(string(rel)); err != nil {
		return apierr.BadRequest("invalid_relationship", err)
	}
	err := s.store.WithSession(ctx, true, func(r neo4jdb.Runner) error {
		return graph.RelateDamages(ctx, r, source, target, rel)
	})
	if err != nil {
		return s.mapGraphError("relate", err)
	}
	return nil
}

func (s *damageGraphService) mapGraphError(op string, err error) error {
	var invalid *temporal.InvalidDamageStructure
	var unavailable *graph.StoreUnavailableError
	switch {
	case errors.As(err, &invalid):
		return apierr.BadRequest("invalid_damage_structure", invalid).WithDetail("key", invalid.Key)
	case errors.Is(err, graph.ErrDamageNotFound):
		return apierr.New(http.StatusNotFound, "damage_not_found", err)
	case errors.As(err, &unavailable):
		s.metrics.IncStoreError("neo4j", unavailable.Op)
		s.log.Error("graph store failure", "op", op, "error", err)
		return apierr.Unavailable("graph_store_unavailable", err)
	default:
		// session and transaction failures from the driver itself
		s.metrics.IncStoreError("neo4j", op)
		s.log.Error("graph operation failed", "op", op, "error", err)
		return apierr.Unavailable("graph_store_unavailable", fmt.Errorf("%s: %w", op, err))
	}
}

func traceID(ctx context.Context) string {
	if td := ctxutil.GetTraceData(ctx); td != nil {
		return td.TraceID
	}
	return ""
}
