package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ScaErrorDecode               = "SCA_DECODE_ERROR"
	ScaErrorStateMismatch        = "SCA_STATE_MISMATCH"
	ScaErrorSequence             = "SCA_SEQUENCE_ERROR"
	ScaErrorInvalidCredentials   = "SCA_INVALID_CREDENTIALS"
	ScaErrorRemoteUnavailable    = "SCA_REMOTE_UNAVAILABLE"
	ScaErrorRemoteRejected       = "SCA_REMOTE_REJECTED"
	ScaErrorUnsupportedOperation = "SCA_UNSUPPORTED_OPERATION"
	ScaErrorBadInput             = "SCA_BAD_INPUT"
	ScaErrorInternal             = "SCA_INTERNAL_ERROR"
)

// ErrorKind is the closed set of failures an authorisation step can surface.
type ErrorKind string

const (
	KindDecode               ErrorKind = "DecodeError"
	KindStateMismatch        ErrorKind = "StateMismatchError"
	KindSequence             ErrorKind = "SequenceError"
	KindInvalidCredentials   ErrorKind = "InvalidCredentials"
	KindRemoteUnavailable    ErrorKind = "RemoteUnavailable"
	KindRemoteRejected       ErrorKind = "RemoteRejected"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperation"
)

type kindSpec struct {
	textCode string
	category goerrors.Category
	status   int
}

var errorKinds = map[ErrorKind]kindSpec{
	KindDecode:               {ScaErrorDecode, goerrors.CategoryBadInput, http.StatusBadRequest},
	KindStateMismatch:        {ScaErrorStateMismatch, goerrors.CategoryConflict, http.StatusConflict},
	KindSequence:             {ScaErrorSequence, goerrors.CategoryConflict, http.StatusConflict},
	KindInvalidCredentials:   {ScaErrorInvalidCredentials, goerrors.CategoryAuth, http.StatusUnauthorized},
	KindRemoteUnavailable:    {ScaErrorRemoteUnavailable, goerrors.CategoryExternal, http.StatusServiceUnavailable},
	KindRemoteRejected:       {ScaErrorRemoteRejected, goerrors.CategoryOperation, http.StatusForbidden},
	KindUnsupportedOperation: {ScaErrorUnsupportedOperation, goerrors.CategoryBadInput, http.StatusBadRequest},
}

const (
	metaErrorKind = "sca_error_kind"
	metaRetryable = "retryable"
)

// NewScaError builds the rich error for kind. The message is surfaced to the
// PSU and must not carry transport internals.
func NewScaError(kind ErrorKind, message string) *goerrors.Error {
	spec, ok := errorKinds[kind]
	if !ok {
		return newServiceError(message, goerrors.CategoryInternal, ScaErrorInternal)
	}
	return goerrors.New(message, spec.category).
		WithCode(spec.status).
		WithTextCode(spec.textCode).
		WithMetadata(map[string]any{
			metaErrorKind: string(kind),
			metaRetryable: kind == KindRemoteUnavailable,
		})
}

// wrapScaError keeps cause reachable through errors.Is. Only use it for
// internal sentinels, never for remote faults.
func wrapScaError(kind ErrorKind, cause error, message string) *goerrors.Error {
	err := NewScaError(kind, message)
	err.Source = cause
	return err
}

func KindOf(err error) (ErrorKind, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return "", false
	}
	if raw, ok := richErr.Metadata[metaErrorKind].(string); ok && raw != "" {
		return ErrorKind(raw), true
	}
	for kind, spec := range errorKinds {
		if richErr.TextCode == spec.textCode {
			return kind, true
		}
	}
	return "", false
}

func IsKind(err error, kind ErrorKind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// IsRetryable reports whether the identical step may be replayed.
func IsRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	retryable, _ := richErr.Metadata[metaRetryable].(bool)
	return retryable
}

func scaErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case goerrors.Is(err, ErrNoPriorState):
		return wrapScaError(KindSequence, err, "no authorisation state is available for this step")
	case goerrors.Is(err, ErrUnsupportedOperation):
		return wrapScaError(KindUnsupportedOperation, err, err.Error())
	case goerrors.Is(err, ErrUnknownStateVariant), goerrors.Is(err, ErrInvalidScaStatus):
		return wrapScaError(KindDecode, err, err.Error())
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ScaErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ScaErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ScaErrorInvalidCredentials
	case goerrors.CategoryConflict:
		return ScaErrorSequence
	case goerrors.CategoryExternal:
		return ScaErrorRemoteUnavailable
	case goerrors.CategoryOperation:
		return ScaErrorRemoteRejected
	default:
		return ScaErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
