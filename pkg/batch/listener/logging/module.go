package logging

import (
	"go.uber.org/fx"
)

// Group names the logging listeners are provided under.
const (
	JobListenerGroup       = `group:"jobListeners"`
	StepListenerGroup      = `group:"stepListeners"`
	ChunkListenerGroup     = `group:"chunkListeners"`
	ItemReadListenerGroup  = `group:"itemReadListeners"`
	ItemWriteListenerGroup = `group:"itemWriteListeners"`
)

// Module adds every logging listener to its value group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewLoggingJobListener, fx.ResultTags(JobListenerGroup))),
	fx.Provide(fx.Annotate(NewLoggingStepListener, fx.ResultTags(StepListenerGroup))),
	fx.Provide(fx.Annotate(NewLoggingChunkListener, fx.ResultTags(ChunkListenerGroup))),
	fx.Provide(fx.Annotate(NewLoggingItemReadListener, fx.ResultTags(ItemReadListenerGroup))),
	fx.Provide(fx.Annotate(NewLoggingItemWriteListener, fx.ResultTags(ItemWriteListenerGroup))),
)
