package services

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/yungbote/damagegraph-backend/internal/data/repos"
	"github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

// AuditRecorder writes one IngestRun per pipeline call. A nil recorder or a nil repo only logs;
// audit failures never fail the call being audited.
type AuditRecorder struct {
	log  *logger.Logger
	repo repos.IngestRunRepo
}

func NewAuditRecorder(baseLog *logger.Logger, repo repos.IngestRunRepo) *AuditRecorder {
	return &AuditRecorder{log: baseLog.With("service", "AuditRecorder"), repo: repo}
}

func (a *AuditRecorder) Record(ctx context.Context, run *ingest.IngestRun, report any) {
	if a == nil || run == nil {
		return
	}
	if report != nil {
		if raw, err := json.Marshal(report); err == nil {
			run.Report = datatypes.JSON(raw)
		}
	}
	a.log.Info("pipeline run",
		"kind", run.Kind,
		"status", run.Status,
		"accepted", run.Accepted,
		"rejected", run.Rejected,
		"duration_ms", run.DurationMS,
		"trace_id", run.TraceID,
	)
	if a.repo == nil {
		return
	}
	if _, err := a.repo.Create(dbctx.Detached(ctx), run); err != nil {
		a.log.Warn("audit write failed", "kind", run.Kind, "error", err)
	}
}

// Recent lists audit entries newest first; it returns nothing when no audit store is configured.
func (a *AuditRecorder) Recent(ctx context.Context, kind string, limit int) ([]*ingest.IngestRun, error) {
	if a == nil || a.repo == nil {
		return []*ingest.IngestRun{}, nil
	}
	return a.repo.ListRecent(dbctx.Context{Ctx: ctx}, kind, limit)
}

func (a *AuditRecorder) Enabled() bool { return a != nil && a.repo != nil }
