package sqlstore

import "github.com/goliatone/go-psd2-sca/core"

var (
	_ core.ActivityRecorder        = (*ActivityStore)(nil)
	_ core.ActivityReader          = (*ActivityStore)(nil)
	_ core.ActivityRetentionPruner = (*ActivityStore)(nil)
	_ core.ActivityReader          = (*CachedActivityStore)(nil)
)
