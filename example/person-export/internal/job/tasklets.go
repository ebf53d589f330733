package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PublishTasklet uploads a finished export file to a storage connection.
type PublishTasklet struct {
	provider storage.Provider
	ref      string
	bucket   string
	file     string
}

var _ port.Tasklet = (*PublishTasklet)(nil)

// NewPublishTasklet uploads file to the connection named ref. An empty bucket
// uses the connection's default bucket.
func NewPublishTasklet(provider storage.Provider, ref, bucket, file string) (*PublishTasklet, error) {
	if provider == nil || ref == "" {
		return nil, exception.NewConfigurationError(moduleName, "PublishTasklet requires a storage provider and reference", nil)
	}
	if file == "" {
		return nil, exception.NewConfigurationError(moduleName, "PublishTasklet requires the file to upload", nil)
	}
	return &PublishTasklet{provider: provider, ref: ref, bucket: bucket, file: file}, nil
}

// ObjectName is the name the file is uploaded under.
func (t *PublishTasklet) ObjectName() string {
	return filepath.Base(t.file)
}

func (t *PublishTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) error {
	conn, err := t.provider.GetConnection(t.ref)
	if err != nil {
		return err
	}
	f, err := os.Open(t.file)
	if err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to open '%s' for publishing", t.file), err, false, false)
	}
	defer f.Close()

	if err := conn.Upload(ctx, t.bucket, t.ObjectName(), f, "text/csv"); err != nil {
		return exception.NewWriteError(moduleName, fmt.Sprintf("failed to publish '%s' to '%s'", t.file, t.ref), err)
	}
	logger.Infof("Step '%s': published '%s' to '%s' as '%s'.", stepExecution.StepName, t.file, t.ref, t.ObjectName())
	return nil
}

// NewGreetingTasklet logs message and completes.
func NewGreetingTasklet(message string) port.Tasklet {
	return port.TaskletFunc(func(ctx context.Context, stepExecution *model.StepExecution) error {
		logger.Infof("Step '%s': %s", stepExecution.StepName, message)
		return ctx.Err()
	})
}
