package query

import (
	"strings"

	"github.com/goliatone/go-psd2-sca/core"
)

const (
	TypeDescribeState      = "sca.query.state.describe"
	TypeConsentStatus      = "sca.query.consent.status"
	TypeAvailableMethods   = "sca.query.methods.available"
	TypeListActivity       = "sca.query.activity.list"
	TypeLatestActivity     = "sca.query.activity.latest"
	defaultActivityPerPage = 50
	maxActivityPerPage     = 500
)

type DescribeStateMessage struct {
	Blob     []byte
	Expected core.StateVariant
}

func (DescribeStateMessage) Type() string { return TypeDescribeState }

func (m DescribeStateMessage) Validate() error {
	if len(m.Blob) == 0 {
		return queryValidationError("blob", "authorisation state is required")
	}
	switch m.Expected {
	case "", core.VariantLogin, core.VariantConsent, core.VariantPayment:
		return nil
	default:
		return queryValidationError("expected", "unknown state variant")
	}
}

type ConsentStatusMessage struct {
	Blob []byte
}

func (ConsentStatusMessage) Type() string { return TypeConsentStatus }

func (m ConsentStatusMessage) Validate() error {
	if len(m.Blob) == 0 {
		return queryValidationError("blob", "authorisation state is required")
	}
	return nil
}

type AvailableMethodsMessage struct {
	Request core.AvailableMethodsRequest
}

func (AvailableMethodsMessage) Type() string { return TypeAvailableMethods }

func (m AvailableMethodsMessage) Validate() error {
	if err := m.Request.Operation.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid operation")
	}
	if len(m.Request.Blob) == 0 {
		return queryValidationError("blob", "authorisation state is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryInvalidInputError("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryInvalidInputError("query: per_page must be >= 0")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryInvalidInputError("query: to must not be before from")
	}
	return nil
}

type LatestActivityMessage struct {
	OperationID string
}

func (LatestActivityMessage) Type() string { return TypeLatestActivity }

func (m LatestActivityMessage) Validate() error {
	if strings.TrimSpace(m.OperationID) == "" {
		return queryValidationError("operation_id", "operation id is required")
	}
	return nil
}
