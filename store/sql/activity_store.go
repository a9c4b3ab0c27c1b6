package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-psd2-sca/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrActivityNotFound = errors.New("sqlstore: no activity recorded for operation")

const defaultActivityPerPage = 25

// ActivityStore persists the SCA audit trail.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*activityRecord]
	now  func() time.Time
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*activityRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: activity store is not configured")
	}
	operationID := strings.TrimSpace(entry.OperationID)
	if operationID == "" {
		return fmt.Errorf("sqlstore: activity entry requires an operation id")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = s.now()
	}
	outcome := entry.Outcome
	if outcome == "" {
		outcome = core.ActivityOutcomeSuccess
	}

	record := &activityRecord{
		ID:              id,
		OperationID:     operationID,
		AuthorisationID: strings.TrimSpace(entry.AuthorisationID),
		Kind:            string(entry.Kind),
		Action:          string(entry.Action),
		PriorStatus:     string(entry.PriorStatus),
		Status:          string(entry.Status),
		Outcome:         string(outcome),
		ErrorCode:       strings.TrimSpace(entry.ErrorCode),
		Metadata:        core.RedactSensitiveMap(entry.Metadata),
		CreatedAt:       createdAt,
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s == nil || s.repo == nil {
		return core.ActivityPage{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultActivityPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if operationID := strings.TrimSpace(filter.OperationID); operationID != "" {
		selectors = append(selectors, repository.SelectBy("operation_id", "=", operationID))
	}
	if kind := strings.TrimSpace(string(filter.Kind)); kind != "" {
		selectors = append(selectors, repository.SelectBy("kind", "=", kind))
	}
	if action := strings.TrimSpace(string(filter.Action)); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if outcome := strings.TrimSpace(string(filter.Outcome)); outcome != "" {
		selectors = append(selectors, repository.SelectBy("outcome", "=", outcome))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ActivityPage{}, err
	}
	items := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		items = append(items, activityRecordToDomain(record))
	}
	return core.ActivityPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// Latest returns the most recent entry for an operation, or
// ErrActivityNotFound.
func (s *ActivityStore) Latest(ctx context.Context, operationID string) (core.ActivityEntry, error) {
	operationID = strings.TrimSpace(operationID)
	if operationID == "" {
		return core.ActivityEntry{}, fmt.Errorf("sqlstore: operation id is required")
	}
	page, err := s.List(ctx, core.ActivityFilter{OperationID: operationID, PerPage: 1})
	if err != nil {
		return core.ActivityEntry{}, err
	}
	if len(page.Items) == 0 {
		return core.ActivityEntry{}, ErrActivityNotFound
	}
	return page.Items[0], nil
}

func (s *ActivityStore) Prune(ctx context.Context, policy core.ActivityRetentionPolicy) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	deleted := 0

	if policy.TTL > 0 {
		cutoff := s.now().Add(-policy.TTL)
		res, err := s.db.NewDelete().
			Model((*activityRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += int(affected)
	}

	if policy.RowCap > 0 {
		total, err := s.db.NewSelect().Model((*activityRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - policy.RowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM sca_activity_entries WHERE id IN (SELECT id FROM sca_activity_entries ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += int(affected)
		}
	}

	return deleted, nil
}

func activityRecordToDomain(record *activityRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:              record.ID,
		OperationID:     record.OperationID,
		AuthorisationID: record.AuthorisationID,
		Kind:            core.OperationKind(record.Kind),
		Action:          core.ActionKind(record.Action),
		PriorStatus:     core.ScaStatus(record.PriorStatus),
		Status:          core.ScaStatus(record.Status),
		Outcome:         core.ActivityOutcome(record.Outcome),
		ErrorCode:       record.ErrorCode,
		Metadata:        copyAnyMap(record.Metadata),
		CreatedAt:       record.CreatedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
