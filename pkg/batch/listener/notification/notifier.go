// Package notification reports finished job executions to an external channel.
package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Notifier notifies external systems about job execution results.
type Notifier interface {
	NotifyJobCompletion(ctx context.Context, execution *model.JobExecution)
}

// LoggingNotifier writes the job summary to the framework log.
type LoggingNotifier struct{}

// NewLoggingNotifier creates a new instance of LoggingNotifier.
func NewLoggingNotifier() Notifier {
	return &LoggingNotifier{}
}

// Summary renders the one-line report of a finished execution.
func Summary(execution *model.JobExecution) string {
	duration := time.Duration(0)
	if execution.EndTime != nil {
		duration = execution.EndTime.Sub(execution.StartTime)
	}
	written := 0
	for _, se := range execution.StepExecutions {
		written += se.WriteCount
	}
	return fmt.Sprintf(
		"Job Notification: Job '%s' (ID: %s) finished with Status: %s, ExitStatus: %s. Duration: %s, Written: %d, Failures: %d",
		execution.JobName,
		execution.ID,
		execution.Status,
		execution.ExitStatus,
		duration,
		written,
		len(execution.Failures),
	)
}

func (n *LoggingNotifier) NotifyJobCompletion(ctx context.Context, execution *model.JobExecution) {
	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", Summary(execution))
	} else {
		logger.Warnf("%s", Summary(execution))
	}
}

var _ Notifier = (*LoggingNotifier)(nil)

// NotificationListener adapts a Notifier to port.JobExecutionListener.
type NotificationListener struct {
	notifier Notifier
}

// NewNotificationListener creates a new instance of NotificationListener.
func NewNotificationListener(notifier Notifier) port.JobExecutionListener {
	return &NotificationListener{notifier: notifier}
}

func (l *NotificationListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {}

// AfterJob sends the notification.
func (l *NotificationListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.notifier.NotifyJobCompletion(ctx, jobExecution)
}

var _ port.JobExecutionListener = (*NotificationListener)(nil)
