// Package telemetry sets up optional error reporting to Sentry. Events are
// stripped of host and user identifying data before they leave the device.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/imagelens/internal/buildinfo"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/errors"
	"github.com/tphakala/imagelens/internal/logger"
)

// DefaultFlushTimeout bounds how long shutdown waits for queued events.
const DefaultFlushTimeout = 2 * time.Second

// Option adjusts the sentry client options.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, used by tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) {
		o.Transport = t
	}
}

// Init initializes the Sentry SDK when telemetry.sentry.enabled is set and
// routes EnhancedErrors to it. With reporting disabled it installs a disabled
// reporter so errors.Build stays on its fast path.
func Init(settings *conf.Settings, build *buildinfo.Context, opts ...Option) error {
	log := logger.Global().Module("telemetry")

	if !settings.Telemetry.Sentry.Enabled {
		errors.SetTelemetryReporter(errors.NewSentryReporter(false))
		return nil
	}

	clientOptions := sentry.ClientOptions{
		Dsn:              settings.Telemetry.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          build.Release(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&clientOptions)
	}

	if err := sentry.Init(clientOptions); err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("error reporting enabled", logger.String("release", build.Release()))
	return nil
}

// Flush waits up to timeout for buffered events to be sent.
func Flush(timeout time.Duration) {
	if errors.GetTelemetryReporter() == nil || !errors.GetTelemetryReporter().IsEnabled() {
		return
	}
	sentry.Flush(timeout)
}

// applyPrivacyFilters removes data that could identify the host or user
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
