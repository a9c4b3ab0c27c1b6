package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the authorisation coordinator. It holds no per-authorisation
// state; everything it needs between steps travels in the caller's blob.
type Service struct {
	config           Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorFactory     ErrorFactory
	errorMapper      ErrorMapper
	secretProvider   SecretProvider
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	authClient       AuthClient
	codec            StateCodec
	machine          ScaStateMachine
	statusSyncHook   StatusSyncHook
	tokenValidator   TokenValidator
	activityRecorder ActivityRecorder
	clock            func() time.Time
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	SecretProvider   SecretProvider
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	AuthClient       AuthClient
	StateCodec       StateCodec
	StatusSyncHook   StatusSyncHook
	TokenValidator   TokenValidator
	ActivityRecorder ActivityRecorder
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("sca", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("sca"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.stateCodec == nil {
		builder.stateCodec = JSONStateCodec{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	codec := builder.stateCodec
	if finalConfig.State.Seal {
		if builder.secretProvider == nil {
			return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: secret provider is required when state.seal is enabled"))
		}
		codec = NewSealedStateCodec(codec, builder.secretProvider)
	}

	statusSyncHook := builder.statusSyncHook
	if finalConfig.Sync.Disabled {
		statusSyncHook = nil
	}
	activityRecorder := builder.activityRecorder
	if finalConfig.Audit.Disabled {
		activityRecorder = nil
	}

	return &Service{
		config:           finalConfig,
		logger:           logger,
		loggerProvider:   provider,
		metricsRecorder:  builder.metricsRecorder,
		errorFactory:     builder.errorFactory,
		errorMapper:      builder.errorMapper,
		secretProvider:   builder.secretProvider,
		configProvider:   builder.configProvider,
		optionsResolver:  builder.optionsResolver,
		authClient:       builder.authClient,
		codec:            codec,
		machine:          ScaStateMachine{Now: builder.clock},
		statusSyncHook:   statusSyncHook,
		tokenValidator:   builder.tokenValidator,
		activityRecorder: activityRecorder,
		clock:            builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Codec() StateCodec {
	if s == nil || s.codec == nil {
		return JSONStateCodec{}
	}
	return s.codec
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		SecretProvider:   s.secretProvider,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		AuthClient:       s.authClient,
		StateCodec:       s.codec,
		StatusSyncHook:   s.statusSyncHook,
		TokenValidator:   s.tokenValidator,
		ActivityRecorder: s.activityRecorder,
	}
}

func (s *Service) mapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	mapper := defaultErrorMapper
	if s != nil && s.errorMapper != nil {
		mapper = s.errorMapper
	}
	mapped := mapper(err)
	if mapped == nil {
		factory := goerrors.New
		if s != nil && s.errorFactory != nil {
			factory = s.errorFactory
		}
		mapped = ensureServiceErrorEnvelope(factory(err.Error(), goerrors.CategoryInternal))
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock()
}
