package ingest

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/damagegraph-backend/internal/domain/ingest"
	"github.com/yungbote/damagegraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type IngestRunRepo interface {
	Create(dbc dbctx.Context, run *types.IngestRun) (*types.IngestRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IngestRun, error)
	ListRecent(dbc dbctx.Context, kind string, limit int) ([]*types.IngestRun, error)
	CountByStatus(dbc dbctx.Context, kind string) (map[string]int64, error)
}

type ingestRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestRunRepo(db *gorm.DB, baseLog *logger.Logger) IngestRunRepo {
	return &ingestRunRepo{
		db:  db,
		log: baseLog.With("repo", "IngestRunRepo"),
	}
}

func (r *ingestRunRepo) Create(dbc dbctx.Context, run *types.IngestRun) (*types.IngestRun, error) {
	if run == nil {
		return nil, nil
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *ingestRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IngestRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.IngestRun
	err := dbc.DB(r.db).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

// ListRecent returns the newest runs first. An empty kind lists every kind.
func (r *ingestRunRepo) ListRecent(dbc dbctx.Context, kind string, limit int) ([]*types.IngestRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := dbc.DB(r.db).Model(&types.IngestRun{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []*types.IngestRun
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestRunRepo) CountByStatus(dbc dbctx.Context, kind string) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	q := dbc.DB(r.db).Model(&types.IngestRun{}).Select("status, count(*) AS n")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
