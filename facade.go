package sca

import (
	"fmt"

	scacommand "github.com/goliatone/go-psd2-sca/command"
	"github.com/goliatone/go-psd2-sca/core"
	scaquery "github.com/goliatone/go-psd2-sca/query"
)

type CommandQueryService interface {
	scacommand.AuthorisationService
	scaquery.StateReader
	scaquery.MethodsReader
}

type Commands struct {
	Initiate      *scacommand.InitiateAuthorisationCommand
	AuthorisePsu  *scacommand.AuthorisePsuCommand
	SelectMethod  *scacommand.SelectScaMethodCommand
	ConfirmCode   *scacommand.ConfirmCodeCommand
	RevokeConsent *scacommand.RevokeConsentCommand
}

// Queries holds the query handlers. The activity queries are nil when no
// activity reader could be resolved.
type Queries struct {
	DescribeState    *scaquery.DescribeStateQuery
	ConsentStatus    *scaquery.ConsentStatusQuery
	AvailableMethods *scaquery.AvailableMethodsQuery
	ListActivity     *scaquery.ListActivityQuery
	LatestActivity   *scaquery.LatestActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader core.ActivityReader
}

func WithActivityReader(reader core.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("sca: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Initiate:      scacommand.NewInitiateAuthorisationCommand(service),
		AuthorisePsu:  scacommand.NewAuthorisePsuCommand(service),
		SelectMethod:  scacommand.NewSelectScaMethodCommand(service),
		ConfirmCode:   scacommand.NewConfirmCodeCommand(service),
		RevokeConsent: scacommand.NewRevokeConsentCommand(service),
	}
	facade.queries = Queries{
		DescribeState:    scaquery.NewDescribeStateQuery(service),
		ConsentStatus:    scaquery.NewConsentStatusQuery(service),
		AvailableMethods: scaquery.NewAvailableMethodsQuery(service),
	}
	if reader != nil {
		facade.queries.ListActivity = scaquery.NewListActivityQuery(reader)
		facade.queries.LatestActivity = scaquery.NewLatestActivityQuery(reader)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader falls back to the service itself, then to its
// configured recorder when that recorder can also read.
func resolveActivityReader(service CommandQueryService) core.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(core.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	reader, ok := provider.Dependencies().ActivityRecorder.(core.ActivityReader)
	if !ok {
		return nil
	}
	return reader
}
