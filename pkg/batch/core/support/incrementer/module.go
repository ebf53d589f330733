package incrementer

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// Module provides the TimestampIncrementer as the application's JobParametersIncrementer.
var Module = fx.Provide(
	fx.Annotate(
		func() *TimestampIncrementer { return NewTimestampIncrementer(DefaultParameterName) },
		fx.As(new(port.JobParametersIncrementer)),
	),
)
