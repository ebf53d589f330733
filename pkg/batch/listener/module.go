package listener

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/notification"
)

// Module aggregates the listener modules and the completion signaler.
var Module = fx.Options(
	logging.Module,
	notification.Module,
	fx.Provide(NewJobCompletionSignaler),
	fx.Provide(fx.Annotate(
		func(s *JobCompletionSignaler) port.JobExecutionListener { return s },
		fx.ResultTags(`group:"jobListeners"`),
	)),
)
