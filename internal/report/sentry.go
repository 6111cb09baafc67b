// Package report sends errors to Sentry.
package report

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/trunov/webpbucket/internal/config"
)

// Init configures the global Sentry client. With an empty DSN the SDK stays
// disabled and every capture is a no-op.
func Init(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

// Flush buffered events before the program terminates.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// Sentry implements pipeline.Reporter.
type Sentry struct{}

func (Sentry) Report(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}
