package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/damagegraph-backend/internal/data/repos/ingest"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

type IngestRunRepo = ingest.IngestRunRepo

func NewIngestRunRepo(db *gorm.DB, baseLog *logger.Logger) IngestRunRepo {
	return ingest.NewIngestRunRepo(db, baseLog)
}
