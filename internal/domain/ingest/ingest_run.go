package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindTimeline = "timeline"
	KindProject  = "project"
	KindLink     = "link"

	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// IngestRun is one audited call into the pipeline: a timeline upload, a projection or a BIM link.
type IngestRun struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Kind     string    `gorm:"column:kind;not null;index" json:"kind"`
	Status   string    `gorm:"column:status;not null;index" json:"status"`
	Subject  string    `gorm:"column:subject;index" json:"subject,omitempty"`
	Source   string    `gorm:"column:source" json:"source,omitempty"`
	TraceID  string    `gorm:"column:trace_id;index" json:"trace_id,omitempty"`
	Error    string    `gorm:"column:error" json:"error,omitempty"`
	Accepted int       `gorm:"column:accepted;not null;default:0" json:"accepted"`
	Rejected int       `gorm:"column:rejected;not null;default:0" json:"rejected"`

	// Report is the JSON summary returned to the caller.
	Report datatypes.JSON `gorm:"column:report;type:jsonb" json:"report,omitempty"`

	DurationMS int64     `gorm:"column:duration_ms;not null;default:0" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (IngestRun) TableName() string { return "ingest_run" }

func (r *IngestRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
