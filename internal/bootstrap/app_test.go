package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whale_watcher/internal/core"
)

// MockLogger implements core.ILogger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(msg string, fields ...interface{})               {}
func (m *MockLogger) Info(msg string, fields ...interface{})                {}
func (m *MockLogger) Warn(msg string, fields ...interface{})                {}
func (m *MockLogger) Error(msg string, fields ...interface{})               {}
func (m *MockLogger) Fatal(msg string, fields ...interface{})               {}
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

func TestApp_RunnerErrorCancelsSiblings(t *testing.T) {
	app := NewApp(&MockLogger{})

	boom := errors.New("boom")
	siblingStopped := make(chan struct{})

	failing := RunnerFunc(func(ctx context.Context) error {
		return boom
	})
	waiting := RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		close(siblingStopped)
		return ctx.Err()
	})

	err := app.Run(failing, waiting)
	assert.ErrorIs(t, err, boom)

	select {
	case <-siblingStopped:
	case <-time.After(time.Second):
		t.Fatal("sibling runner was not cancelled")
	}
}

func TestApp_CleanExitIsNotAnError(t *testing.T) {
	app := NewApp(&MockLogger{})

	done := RunnerFunc(func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, app.Run(done))
}

func TestApp_ContextCanceledTreatedAsClean(t *testing.T) {
	app := NewApp(&MockLogger{})

	r := RunnerFunc(func(ctx context.Context) error {
		return context.Canceled
	})

	assert.NoError(t, app.Run(r))
}
