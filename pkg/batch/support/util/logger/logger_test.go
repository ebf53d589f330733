package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxevent"
)

func TestSetLogLevel_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLogLevel("INFO") })

	SetLogLevel("WARN")
	assert.Equal(t, LevelWarn, GetLogLevel())

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "WARN")
}

func TestSetLogLevel_UnknownFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	SetLogLevel("verbose")
	assert.Equal(t, LevelInfo, GetLogLevel())
	assert.Contains(t, buf.String(), "Unknown log level 'verbose'")
}

func TestFxLoggerAdapter_LogsHookFailures(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel("INFO")

	adapter := NewFxLoggerAdapter()
	adapter.LogEvent(&fxevent.OnStartExecuted{FunctionName: "main.run.func1", Err: errors.New("boom")})

	assert.Contains(t, buf.String(), "OnStart hook main.run failed: boom")
}
