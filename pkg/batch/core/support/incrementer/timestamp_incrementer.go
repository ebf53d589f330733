package incrementer

import (
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// TimestampIncrementer stamps the launch time in Unix milliseconds into the job parameters,
// so that every launch is a new job instance.
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer creates a new instance of TimestampIncrementer.
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = DefaultParameterName
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext sets the parameter to the current Unix milliseconds in a copy of params.
func (i *TimestampIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	next := params.Copy()
	ts := i.now().UnixMilli()
	next.Put(i.name, ts)
	logger.Debugf("JobParametersIncrementer '%s': Setting '%s' to %d.", i, i.name, ts)
	return next
}

// String returns the string representation of TimestampIncrementer.
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*TimestampIncrementer)(nil)
