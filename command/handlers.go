package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-psd2-sca/core"
)

// AuthorisationService is the subset of core.Service the command handlers
// drive.
type AuthorisationService interface {
	InitiateAuthorization(ctx context.Context, req core.InitiateRequest) (core.StepResult, error)
	AuthorisePsu(ctx context.Context, req core.AuthorisePsuRequest) (core.StepResult, error)
	SelectScaMethod(ctx context.Context, req core.SelectMethodRequest) (core.StepResult, error)
	ConfirmCode(ctx context.Context, req core.ConfirmCodeRequest) (core.StepResult, error)
	RevokeConsent(ctx context.Context, req core.RevokeConsentRequest) (core.StepResult, error)
}

type InitiateAuthorisationCommand struct {
	service AuthorisationService
}

func NewInitiateAuthorisationCommand(service AuthorisationService) *InitiateAuthorisationCommand {
	return &InitiateAuthorisationCommand{service: service}
}

func (c *InitiateAuthorisationCommand) Execute(ctx context.Context, msg InitiateAuthorisationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: initiate authorisation service is required")
	}
	out, err := c.service.InitiateAuthorization(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type AuthorisePsuCommand struct {
	service AuthorisationService
}

func NewAuthorisePsuCommand(service AuthorisationService) *AuthorisePsuCommand {
	return &AuthorisePsuCommand{service: service}
}

func (c *AuthorisePsuCommand) Execute(ctx context.Context, msg AuthorisePsuMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorise psu service is required")
	}
	out, err := c.service.AuthorisePsu(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type SelectScaMethodCommand struct {
	service AuthorisationService
}

func NewSelectScaMethodCommand(service AuthorisationService) *SelectScaMethodCommand {
	return &SelectScaMethodCommand{service: service}
}

func (c *SelectScaMethodCommand) Execute(ctx context.Context, msg SelectScaMethodMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: select sca method service is required")
	}
	out, err := c.service.SelectScaMethod(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type ConfirmCodeCommand struct {
	service AuthorisationService
}

func NewConfirmCodeCommand(service AuthorisationService) *ConfirmCodeCommand {
	return &ConfirmCodeCommand{service: service}
}

func (c *ConfirmCodeCommand) Execute(ctx context.Context, msg ConfirmCodeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: confirm code service is required")
	}
	out, err := c.service.ConfirmCode(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type RevokeConsentCommand struct {
	service AuthorisationService
}

func NewRevokeConsentCommand(service AuthorisationService) *RevokeConsentCommand {
	return &RevokeConsentCommand{service: service}
}

func (c *RevokeConsentCommand) Execute(ctx context.Context, msg RevokeConsentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke consent service is required")
	}
	out, err := c.service.RevokeConsent(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

// storeResult publishes the step result, failed steps included: the blob in
// it is what the caller persists next.
func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
