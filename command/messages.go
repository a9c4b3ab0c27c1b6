package command

import (
	"strings"

	"github.com/goliatone/go-psd2-sca/core"
)

const (
	TypeInitiateAuthorisation = "sca.command.authorisation.initiate"
	TypeAuthorisePsu          = "sca.command.psu.authorise"
	TypeSelectScaMethod       = "sca.command.method.select"
	TypeConfirmCode           = "sca.command.code.confirm"
	TypeRevokeConsent         = "sca.command.consent.revoke"
)

type InitiateAuthorisationMessage struct {
	Request core.InitiateRequest
}

func (InitiateAuthorisationMessage) Type() string { return TypeInitiateAuthorisation }

func (m InitiateAuthorisationMessage) Validate() error {
	return validateOperation(m.Request.Operation)
}

type AuthorisePsuMessage struct {
	Request core.AuthorisePsuRequest
}

func (AuthorisePsuMessage) Type() string { return TypeAuthorisePsu }

func (m AuthorisePsuMessage) Validate() error {
	if err := validateOperation(m.Request.Operation); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Credentials.LoginID) == "" {
		return commandInputError(core.KindInvalidCredentials, "credentials.login_id", "PSU login id is missing")
	}
	return validateBlob(m.Request.Blob)
}

type SelectScaMethodMessage struct {
	Request core.SelectMethodRequest
}

func (SelectScaMethodMessage) Type() string { return TypeSelectScaMethod }

func (m SelectScaMethodMessage) Validate() error {
	if err := validateOperation(m.Request.Operation); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.MethodID) == "" {
		return commandInputError(core.KindUnsupportedOperation, "method_id", "No SCA method was chosen")
	}
	return validateBlob(m.Request.Blob)
}

type ConfirmCodeMessage struct {
	Request core.ConfirmCodeRequest
}

func (ConfirmCodeMessage) Type() string { return TypeConfirmCode }

func (m ConfirmCodeMessage) Validate() error {
	if err := validateOperation(m.Request.Operation); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandInputError(core.KindInvalidCredentials, "code", "Authentication code is missing")
	}
	return validateBlob(m.Request.Blob)
}

type RevokeConsentMessage struct {
	Request core.RevokeConsentRequest
}

func (RevokeConsentMessage) Type() string { return TypeRevokeConsent }

func (m RevokeConsentMessage) Validate() error {
	if kind := m.Request.Operation.Kind; kind != "" && kind != core.OperationKindConsent {
		return commandValidationError("operation.kind", "only consents can be revoked")
	}
	return validateBlob(m.Request.Blob)
}

func validateOperation(op core.OperationContext) error {
	if err := op.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid operation")
	}
	return nil
}

func validateBlob(blob []byte) error {
	if len(blob) == 0 {
		return commandValidationError("blob", "authorisation state is required")
	}
	return nil
}
