package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type activityRecord struct {
	bun.BaseModel `bun:"table:sca_activity_entries,alias:sae"`

	ID              string         `bun:"id,pk"`
	OperationID     string         `bun:"operation_id,notnull"`
	AuthorisationID string         `bun:"authorisation_id,notnull"`
	Kind            string         `bun:"kind,notnull"`
	Action          string         `bun:"action,notnull"`
	PriorStatus     string         `bun:"prior_status,notnull"`
	Status          string         `bun:"status,notnull"`
	Outcome         string         `bun:"outcome,notnull"`
	ErrorCode       string         `bun:"error_code,notnull"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
