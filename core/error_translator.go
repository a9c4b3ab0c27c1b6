package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	messageRemoteUnavailable  = "The authorisation service is temporarily unavailable"
	messageInvalidCredentials = "PSU credentials are invalid"
	messageConsentRejected    = "The consent-ID cannot be matched by the ASPSP relative to the TPP"
	messagePaymentRejected    = "Couldn't execute payment"
	messageGenericRejected    = "The authorisation service rejected the request"
	messageMissingLoginID     = "PSU login id is missing"
	messageMissingCode        = "Authentication code is missing"
	messageMissingMethod      = "No SCA method was chosen"
)

// RemoteFault is returned by AuthClient implementations when the remote
// authorisation service answers with a non-2xx status or cannot be reached.
// A zero StatusCode means the request never produced a response.
type RemoteFault struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (f *RemoteFault) Error() string {
	if f == nil {
		return "<nil>"
	}
	parts := []string{"core: remote fault"}
	if f.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status %d", f.StatusCode))
	}
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Message != "" {
		parts = append(parts, f.Message)
	}
	if f.Err != nil {
		parts = append(parts, f.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (f *RemoteFault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// TranslateRemoteFault maps an AuthClient failure to the closed error
// taxonomy. The returned error never embeds err.
func TranslateRemoteFault(kind OperationKind, action ActionKind, err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && isTranslated(richErr) {
		return richErr
	}

	metadata := map[string]any{
		"operation_kind": string(kind),
		"action":         string(action),
	}

	var fault *RemoteFault
	if !errors.As(err, &fault) || fault == nil || isTransportFailure(err) || fault.StatusCode == 0 || fault.StatusCode >= http.StatusInternalServerError {
		if fault != nil && fault.StatusCode > 0 {
			metadata["remote_status"] = fault.StatusCode
		}
		return NewScaError(KindRemoteUnavailable, messageRemoteUnavailable).WithMetadata(metadata)
	}

	metadata["remote_status"] = fault.StatusCode
	if fault.Code != "" {
		metadata["remote_code"] = fault.Code
	}

	if action == ActionLogin {
		return NewScaError(KindInvalidCredentials, messageInvalidCredentials).WithMetadata(metadata)
	}

	return NewScaError(KindRemoteRejected, rejectionMessage(kind)).
		WithCode(fault.StatusCode).
		WithMetadata(metadata)
}

func rejectionMessage(kind OperationKind) string {
	switch kind {
	case OperationKindConsent:
		return messageConsentRejected
	case OperationKindPayment:
		return messagePaymentRejected
	default:
		return messageGenericRejected
	}
}

// isTranslated reports whether err was built by NewScaError. Text codes alone
// do not count; adapters are free to pick colliding codes.
func isTranslated(err *goerrors.Error) bool {
	if err == nil {
		return false
	}
	raw, ok := err.Metadata[metaErrorKind].(string)
	if !ok {
		return false
	}
	_, known := errorKinds[ErrorKind(raw)]
	return known
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
