package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoPriorState         = errors.New("core: no prior authorisation state")
	ErrUnknownStateVariant  = errors.New("core: unknown state variant")
	ErrInvalidScaStatus     = errors.New("core: invalid sca status")
	ErrUnsupportedOperation = errors.New("core: unsupported operation kind")
)

type ScaStatus string

const (
	ScaStatusStarted          ScaStatus = "STARTED"
	ScaStatusPSUIdentified    ScaStatus = "PSU_IDENTIFIED"
	ScaStatusPSUAuthenticated ScaStatus = "PSU_AUTHENTICATED"
	ScaStatusMethodSelected   ScaStatus = "SCA_METHOD_SELECTED"
	ScaStatusFinalised        ScaStatus = "FINALISED"
	ScaStatusExempted         ScaStatus = "EXEMPTED"
	ScaStatusFailed           ScaStatus = "FAILED"
)

var knownScaStatuses = map[ScaStatus]struct{}{
	ScaStatusStarted:          {},
	ScaStatusPSUIdentified:    {},
	ScaStatusPSUAuthenticated: {},
	ScaStatusMethodSelected:   {},
	ScaStatusFinalised:        {},
	ScaStatusExempted:         {},
	ScaStatusFailed:           {},
}

func ParseScaStatus(value string) (ScaStatus, error) {
	status := ScaStatus(strings.ToUpper(strings.TrimSpace(value)))
	// the remote side spells the identified/authenticated statuses without underscores
	switch status {
	case "PSUIDENTIFIED":
		status = ScaStatusPSUIdentified
	case "PSUAUTHENTICATED":
		status = ScaStatusPSUAuthenticated
	case "SCAMETHODSELECTED":
		status = ScaStatusMethodSelected
	}
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidScaStatus, value)
	}
	return status, nil
}

func (s ScaStatus) Valid() bool {
	_, ok := knownScaStatuses[s]
	return ok
}

func (s ScaStatus) IsTerminal() bool {
	switch s {
	case ScaStatusFinalised, ScaStatusExempted, ScaStatusFailed:
		return true
	default:
		return false
	}
}

// IsExemptionCandidate reports whether a post-login status lets the
// underlying operation be created without further SCA steps.
func (s ScaStatus) IsExemptionCandidate() bool {
	switch s {
	case ScaStatusExempted, ScaStatusPSUAuthenticated, ScaStatusPSUIdentified:
		return true
	default:
		return false
	}
}

type OperationKind string

const (
	OperationKindConsent OperationKind = "consent"
	OperationKindPayment OperationKind = "payment"
)

func (k OperationKind) Valid() bool {
	return k == OperationKindConsent || k == OperationKindPayment
}

type PaymentType string

const (
	PaymentTypeSingle   PaymentType = "SINGLE"
	PaymentTypeBulk     PaymentType = "BULK"
	PaymentTypePeriodic PaymentType = "PERIODIC"
)

func ParsePaymentType(value string) (PaymentType, error) {
	paymentType := PaymentType(strings.ToUpper(strings.TrimSpace(value)))
	switch paymentType {
	case PaymentTypeSingle, PaymentTypeBulk, PaymentTypePeriodic:
		return paymentType, nil
	default:
		return "", fmt.Errorf("%w: payment type %q", ErrUnsupportedOperation, value)
	}
}

type ConsentStatus string

const (
	ConsentStatusReceived            ConsentStatus = "RECEIVED"
	ConsentStatusValid               ConsentStatus = "VALID"
	ConsentStatusPartiallyAuthorised ConsentStatus = "PARTIALLY_AUTHORISED"
	ConsentStatusRejected            ConsentStatus = "REJECTED"
	ConsentStatusRevokedByPSU        ConsentStatus = "REVOKED_BY_PSU"
)

// DeriveConsentStatus maps an authorisation response to the consent status
// reported to the calling framework.
func DeriveConsentStatus(resp ScaResponse) ConsentStatus {
	switch resp.ScaStatus {
	case ScaStatusFinalised:
		if resp.MultilevelScaRequired && resp.PartiallyAuthorised {
			return ConsentStatusPartiallyAuthorised
		}
		return ConsentStatusValid
	case ScaStatusExempted:
		return ConsentStatusValid
	case ScaStatusFailed:
		return ConsentStatusRejected
	default:
		return ConsentStatusReceived
	}
}

type ScaMethod struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
}

type BearerToken struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (t *BearerToken) Empty() bool {
	return t == nil || strings.TrimSpace(t.AccessToken) == ""
}

type ChallengeData struct {
	Data                  []string `json:"data"`
	ImageLink             string   `json:"imageLink,omitempty"`
	OtpMaxLength          int      `json:"otpMaxLength,omitempty"`
	OtpFormat             string   `json:"otpFormat,omitempty"`
	AdditionalInformation string   `json:"additionalInformation,omitempty"`
}

// ScaResponse holds the fields shared by every persisted state variant.
type ScaResponse struct {
	OperationID           string         `json:"operationId"`
	AuthorisationID       string         `json:"authorisationId"`
	ScaStatus             ScaStatus      `json:"scaStatus"`
	BearerToken           *BearerToken   `json:"bearerToken"`
	ScaMethods            []ScaMethod    `json:"scaMethods"`
	ChosenScaMethod       *ScaMethod     `json:"chosenScaMethod"`
	Challenge             *ChallengeData `json:"challengeData"`
	MultilevelScaRequired bool           `json:"multilevelScaRequired"`
	PartiallyAuthorised   bool           `json:"partiallyAuthorised"`
	StatusDate            time.Time      `json:"statusDate"`
	PsuMessage            string         `json:"psuMessage,omitempty"`
}

func (r ScaResponse) clone() ScaResponse {
	out := r
	out.BearerToken = cloneBearerToken(r.BearerToken)
	out.ScaMethods = cloneScaMethods(r.ScaMethods)
	if r.ChosenScaMethod != nil {
		method := *r.ChosenScaMethod
		out.ChosenScaMethod = &method
	}
	if r.Challenge != nil {
		challenge := *r.Challenge
		if r.Challenge.Data != nil {
			challenge.Data = append([]string{}, r.Challenge.Data...)
		}
		out.Challenge = &challenge
	}
	return out
}

type StateVariant string

const (
	VariantLogin   StateVariant = "LoginState"
	VariantConsent StateVariant = "ConsentState"
	VariantPayment StateVariant = "PaymentState"
)

func (v StateVariant) Valid() bool {
	switch v {
	case VariantLogin, VariantConsent, VariantPayment:
		return true
	default:
		return false
	}
}

// ScaResponseState is the persisted authorisation record. Implementations are
// values; WithResponse returns a new state and never mutates the receiver.
type ScaResponseState interface {
	Variant() StateVariant
	Response() ScaResponse
	WithResponse(resp ScaResponse) ScaResponseState
}

// LoginState is the record produced by a PSU login before it is bound to a
// consent or payment.
type LoginState struct {
	ScaResponse
}

func (s LoginState) Variant() StateVariant { return VariantLogin }

func (s LoginState) Response() ScaResponse { return s.ScaResponse.clone() }

func (s LoginState) WithResponse(resp ScaResponse) ScaResponseState {
	return LoginState{ScaResponse: resp.clone()}
}

type ConsentState struct {
	ScaResponse
	Revoked bool `json:"revoked,omitempty"`
}

func (s ConsentState) Variant() StateVariant { return VariantConsent }

func (s ConsentState) Response() ScaResponse { return s.ScaResponse.clone() }

func (s ConsentState) WithResponse(resp ScaResponse) ScaResponseState {
	return ConsentState{ScaResponse: resp.clone(), Revoked: s.Revoked}
}

func (s ConsentState) ConsentStatus() ConsentStatus {
	if s.Revoked {
		return ConsentStatusRevokedByPSU
	}
	return DeriveConsentStatus(s.ScaResponse)
}

type PaymentState struct {
	ScaResponse
	PaymentType    PaymentType `json:"paymentType"`
	PaymentProduct string      `json:"paymentProduct,omitempty"`
}

func (s PaymentState) Variant() StateVariant { return VariantPayment }

func (s PaymentState) Response() ScaResponse { return s.ScaResponse.clone() }

func (s PaymentState) WithResponse(resp ScaResponse) ScaResponseState {
	return PaymentState{
		ScaResponse:    resp.clone(),
		PaymentType:    s.PaymentType,
		PaymentProduct: s.PaymentProduct,
	}
}

func variantForKind(kind OperationKind) (StateVariant, error) {
	switch kind {
	case OperationKindConsent:
		return VariantConsent, nil
	case OperationKindPayment:
		return VariantPayment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperation, kind)
	}
}

func cloneBearerToken(token *BearerToken) *BearerToken {
	if token == nil {
		return nil
	}
	copied := *token
	return &copied
}

func cloneScaMethods(methods []ScaMethod) []ScaMethod {
	if methods == nil {
		return nil
	}
	return append([]ScaMethod{}, methods...)
}

func findScaMethod(methods []ScaMethod, id string) (ScaMethod, bool) {
	id = strings.TrimSpace(id)
	for _, method := range methods {
		if method.ID == id {
			return method, true
		}
	}
	return ScaMethod{}, false
}
