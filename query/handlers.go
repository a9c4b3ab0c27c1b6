package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-psd2-sca/core"
)

type StateReader interface {
	DescribeState(ctx context.Context, blob []byte, expected ...core.StateVariant) (core.StepResult, error)
}

type MethodsReader interface {
	RequestAvailableScaMethods(ctx context.Context, req core.AvailableMethodsRequest) (core.StepResult, error)
}

type DescribeStateQuery struct {
	reader StateReader
}

func NewDescribeStateQuery(reader StateReader) *DescribeStateQuery {
	return &DescribeStateQuery{reader: reader}
}

func (q *DescribeStateQuery) Query(ctx context.Context, msg DescribeStateMessage) (core.StepResult, error) {
	if q == nil || q.reader == nil {
		return core.StepResult{}, queryDependencyError("query: state reader is required")
	}
	return q.reader.DescribeState(ctx, msg.Blob, msg.Expected)
}

type ConsentStatusQuery struct {
	reader StateReader
}

func NewConsentStatusQuery(reader StateReader) *ConsentStatusQuery {
	return &ConsentStatusQuery{reader: reader}
}

func (q *ConsentStatusQuery) Query(ctx context.Context, msg ConsentStatusMessage) (core.ConsentStatus, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: state reader is required")
	}
	result, err := q.reader.DescribeState(ctx, msg.Blob, core.VariantConsent)
	if err != nil {
		return "", err
	}
	return result.ConsentStatus, nil
}

type AvailableMethodsQuery struct {
	reader MethodsReader
}

func NewAvailableMethodsQuery(reader MethodsReader) *AvailableMethodsQuery {
	return &AvailableMethodsQuery{reader: reader}
}

func (q *AvailableMethodsQuery) Query(ctx context.Context, msg AvailableMethodsMessage) (core.StepResult, error) {
	if q == nil || q.reader == nil {
		return core.StepResult{}, queryDependencyError("query: methods reader is required")
	}
	return q.reader.RequestAvailableScaMethods(ctx, msg.Request)
}

type ListActivityQuery struct {
	reader core.ActivityReader
}

func NewListActivityQuery(reader core.ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	filter := msg.Filter
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PerPage == 0 {
		filter.PerPage = defaultActivityPerPage
	}
	if filter.PerPage > maxActivityPerPage {
		filter.PerPage = maxActivityPerPage
	}
	filter.OperationID = strings.TrimSpace(filter.OperationID)
	return q.reader.List(ctx, filter)
}

type LatestActivityQuery struct {
	reader core.ActivityReader
}

func NewLatestActivityQuery(reader core.ActivityReader) *LatestActivityQuery {
	return &LatestActivityQuery{reader: reader}
}

func (q *LatestActivityQuery) Query(ctx context.Context, msg LatestActivityMessage) (core.ActivityEntry, error) {
	if q == nil || q.reader == nil {
		return core.ActivityEntry{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.Latest(ctx, strings.TrimSpace(msg.OperationID))
}
