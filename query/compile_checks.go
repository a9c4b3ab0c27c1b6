package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-psd2-sca/core"
)

var (
	_ gocmd.Querier[DescribeStateMessage, core.StepResult]     = (*DescribeStateQuery)(nil)
	_ gocmd.Querier[ConsentStatusMessage, core.ConsentStatus]  = (*ConsentStatusQuery)(nil)
	_ gocmd.Querier[AvailableMethodsMessage, core.StepResult]  = (*AvailableMethodsQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage]    = (*ListActivityQuery)(nil)
	_ gocmd.Querier[LatestActivityMessage, core.ActivityEntry] = (*LatestActivityQuery)(nil)

	_ StateReader   = (*core.Service)(nil)
	_ MethodsReader = (*core.Service)(nil)
)
