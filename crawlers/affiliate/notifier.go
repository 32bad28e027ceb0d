package affiliate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/rs/zerolog/log"
)

const (
	LevelInfo  = "info"
	LevelError = "error"
)

var (
	notifySearchInputMissing = messaging.Notification{
		Title:   "Crawler Error",
		Message: "Search input field not found! Crawling cannot continue.",
		Level:   LevelError,
	}
	notifyStopped = messaging.Notification{
		Title:   "Creator Crawler Stopped",
		Message: "The creator crawling process has been stopped.",
		Level:   LevelInfo,
	}
	notifyCompleted = messaging.Notification{
		Title:   "Creator Crawler Completed",
		Message: "The creator crawling process has been completed for all creators.",
		Level:   LevelInfo,
	}
	notifySinkMissing = messaging.Notification{
		Title:   "Creator Crawler Stopped",
		Message: "API endpoint is not set! Crawling cannot start.",
		Level:   LevelError,
	}
)

// Publisher sends a core NATS message. *messaging.NatsBroker satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier logs each notification and publishes it on subject.
type NatsNotifier struct {
	publisher Publisher
	subject   string
}

func NewNatsNotifier(publisher Publisher, subject string) *NatsNotifier {
	return &NatsNotifier{publisher: publisher, subject: subject}
}

func (n *NatsNotifier) Notify(ctx context.Context, note messaging.Notification) {
	if note.Timestamp.IsZero() {
		note.Timestamp = time.Now().UTC()
	}

	ev := log.Info()
	if note.Level == LevelError {
		ev = log.Warn()
	}
	ev.Ctx(ctx).Str("title", note.Title).Msg(note.Message)

	if n.publisher == nil {
		return
	}
	data, err := json.Marshal(note)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode notification")
		return
	}
	if err := n.publisher.Publish(n.subject, data); err != nil {
		log.Error().Err(err).Str("subject", n.subject).Msg("Failed to publish notification")
	}
}
