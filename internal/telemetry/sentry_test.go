package telemetry

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/imagelens/internal/buildinfo"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/errors"
)

// mockTransport implements sentry.Transport and keeps sent events in memory.
type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {} //nolint:gocritic // interface signature

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool              { return true }
func (t *mockTransport) FlushWithContext(context.Context) bool { return true }
func (t *mockTransport) Close()                                {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestInitDisabledInstallsDisabledReporter(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	settings := &conf.Settings{}
	require.NoError(t, Init(settings, buildinfo.NewContext("1.0.0", "")))

	reporter := errors.GetTelemetryReporter()
	require.NotNil(t, reporter)
	assert.False(t, reporter.IsEnabled())
}

func TestInitReportsScrubbedErrors(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	transport := &mockTransport{}
	settings := &conf.Settings{}
	settings.Telemetry.Sentry.Enabled = true

	require.NoError(t, Init(settings, buildinfo.NewContext("1.0.0", ""), WithTransport(transport)))
	require.True(t, errors.GetTelemetryReporter().IsEnabled())

	hash := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	_ = errors.New(stderrors.New("cache write failed for "+hash)).
		Component("cache").
		Category(errors.CategoryCache).
		Build()
	Flush(time.Second)

	events := transport.Events()
	require.Len(t, events, 1)
	assert.NotContains(t, events[0].Message, hash)
	assert.Contains(t, events[0].Message, "[HASH_REDACTED]")
	assert.Empty(t, events[0].ServerName)
	assert.Equal(t, "imagelens@1.0.0", events[0].Release)
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := sentry.NewEvent()
	event.ServerName = "kitchen-pi"
	event.User = sentry.User{ID: "42"}
	event.Contexts = map[string]sentry.Context{"os": {"name": "linux"}, "app": {"v": 1}}
	event.Extra = map[string]any{"component": "cache", "path": "/home/user"}
	event.Tags = map[string]string{"hostname": "kitchen-pi", "category": "cache"}

	filtered := applyPrivacyFilters(event)

	assert.Empty(t, filtered.ServerName)
	assert.True(t, filtered.User.IsEmpty())
	assert.NotContains(t, filtered.Contexts, "os")
	assert.Contains(t, filtered.Contexts, "app")
	assert.Equal(t, map[string]any{"component": "cache"}, filtered.Extra)
	assert.Equal(t, map[string]string{"category": "cache"}, filtered.Tags)
}
