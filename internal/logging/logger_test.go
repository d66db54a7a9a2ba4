package logging

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions) {}

func (t *recordingTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *recordingTransport) Flush(time.Duration) bool { return true }

func (t *recordingTransport) FlushWithContext(ctx context.Context) bool { return true }

func (t *recordingTransport) Close() {}

func TestSentryHook_Fire(t *testing.T) {
	transport := &recordingTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:       "https://public@sentry.example.com/1",
		Transport: transport,
	})
	require.NoError(t, err)
	hub := sentry.NewHub(client, sentry.NewScope())

	hook := NewSentryHookWithHub(hub, []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel})
	assert.Equal(t, []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel}, hook.Levels())

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)

	logger.WithError(errors.New("snapshot store down")).
		WithField("exercise", "squat").
		Error("save snapshot failed")
	// below the hook levels, never forwarded
	logger.Warn("cache miss")

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.events, 1)
	event := transport.events[0]
	assert.Equal(t, sentry.LevelError, event.Level)
	assert.Equal(t, "save snapshot failed", event.Message)
	assert.Equal(t, "squat", event.Extra["exercise"])
	require.Len(t, event.Exception, 1)
	assert.Equal(t, "snapshot store down", event.Exception[0].Value)
}

func TestSentryHook_NoClient(t *testing.T) {
	hook := NewSentryHookWithHub(sentry.NewHub(nil, sentry.NewScope()), []logrus.Level{logrus.ErrorLevel})
	assert.Error(t, hook.Fire(&logrus.Entry{Level: logrus.ErrorLevel, Message: "x"}))
}

func TestGetLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, GetLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, GetLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, GetLevel("error"))
	assert.Equal(t, logrus.TraceLevel, GetLevel("nonsense"))
}
