package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	scacommand "github.com/goliatone/go-psd2-sca/command"
	"github.com/goliatone/go-psd2-sca/core"
	scaquery "github.com/goliatone/go-psd2-sca/query"
)

// AuthorisationRuntime is what the authorisation commands and state queries
// need. *core.Service satisfies it.
type AuthorisationRuntime interface {
	scacommand.AuthorisationService
	scaquery.StateReader
	scaquery.MethodsReader
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterAuthorisation registers and subscribes every SCA command and query.
// Activity queries are skipped when activity is nil. On error the
// subscriptions made so far are released.
func RegisterAuthorisation(
	adapter *RegistryAdapter,
	service AuthorisationRuntime,
	activity core.ActivityReader,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if service == nil {
		return nil, fmt.Errorf("gocommand: authorisation service is required")
	}
	subs := Subscriptions{}
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if err := add(RegisterAndSubscribe(adapter, scacommand.NewInitiateAuthorisationCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe(adapter, scacommand.NewAuthorisePsuCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe(adapter, scacommand.NewSelectScaMethodCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe(adapter, scacommand.NewConfirmCodeCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribe(adapter, scacommand.NewRevokeConsentCommand(service), runnerOpts...)); err != nil {
		return nil, err
	}

	if err := add(RegisterAndSubscribeQuery(adapter, scaquery.NewDescribeStateQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribeQuery(adapter, scaquery.NewConsentStatusQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribeQuery(adapter, scaquery.NewAvailableMethodsQuery(service), runnerOpts...)); err != nil {
		return nil, err
	}
	if activity == nil {
		return subs, nil
	}
	if err := add(RegisterAndSubscribeQuery(adapter, scaquery.NewListActivityQuery(activity), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribeQuery(adapter, scaquery.NewLatestActivityQuery(activity), runnerOpts...)); err != nil {
		return nil, err
	}
	return subs, nil
}

var _ AuthorisationRuntime = (*core.Service)(nil)
