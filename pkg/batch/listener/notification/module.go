package notification

import (
	"go.uber.org/fx"
)

// Module provides the logging Notifier and adds its listener to the job listener group.
var Module = fx.Options(
	fx.Provide(NewLoggingNotifier),
	fx.Provide(fx.Annotate(NewNotificationListener, fx.ResultTags(`group:"jobListeners"`))),
)
