package affiliate

import (
	"context"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/creator-crawler-service/common/work"
	"github.com/samber/mo"
)

// SearchDriver triggers the page's own search for one handle.
type SearchDriver interface {
	Search(ctx context.Context, id string) error
}

// ProfileSource fans out the profile requests of a matched creator. None means
// no profile type could be fetched.
type ProfileSource interface {
	FetchProfiles(ctx context.Context, stub CreatorStub, evt InterceptedEvent) mo.Option[CreatorRecord]
}

// Sink forwards records to the user-configured endpoints.
type Sink interface {
	PublishCreators(ctx context.Context, cfg SinkConfig, records ...CreatorRecord) error
	PublishErrors(ctx context.Context, cfg SinkConfig, errs ...CrawlError) error
}

// Notifier surfaces status messages to the user. It must not block.
type Notifier interface {
	Notify(ctx context.Context, n messaging.Notification)
}

// RunRecorder keeps the run history. *work.WorkManager satisfies it.
type RunRecorder interface {
	Start(ctx context.Context, id string, useAPI bool, total int) error
	Resume(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	Fail(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, summary work.RunSummary) error
}

// EventPublisher publishes durable domain events.
type EventPublisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// SettingsLoader reads the config scope merged over the service defaults.
type SettingsLoader interface {
	Load(ctx context.Context) (Settings, error)
}

// Timer is the part of *time.Timer the orchestrator uses.
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}
