package sca

import "github.com/goliatone/go-psd2-sca/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type AuthClient = core.AuthClient
type StatusSyncHook = core.StatusSyncHook
type TokenValidator = core.TokenValidator
type ActivityRecorder = core.ActivityRecorder
type ActivityReader = core.ActivityReader
type SecretProvider = core.SecretProvider
type StateCodec = core.StateCodec

type OperationContext = core.OperationContext
type PsuCredentials = core.PsuCredentials
type InitiateRequest = core.InitiateRequest
type AuthorisePsuRequest = core.AuthorisePsuRequest
type AvailableMethodsRequest = core.AvailableMethodsRequest
type SelectMethodRequest = core.SelectMethodRequest
type ConfirmCodeRequest = core.ConfirmCodeRequest
type RevokeConsentRequest = core.RevokeConsentRequest

type StepResult = core.StepResult

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithSecretProvider   = core.WithSecretProvider
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithAuthClient       = core.WithAuthClient
	WithStateCodec       = core.WithStateCodec
	WithStatusSyncHook   = core.WithStatusSyncHook
	WithTokenValidator   = core.WithTokenValidator
	WithActivityRecorder = core.WithActivityRecorder
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
