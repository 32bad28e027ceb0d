package crawlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/kvstore"
	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/nats-io/nats.go"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopDriver struct{}

func (noopDriver) Search(context.Context, string) error { return nil }

type noopProfiles struct{}

func (noopProfiles) FetchProfiles(context.Context, affiliate.CreatorStub, affiliate.InterceptedEvent) mo.Option[affiliate.CreatorRecord] {
	return mo.None[affiliate.CreatorRecord]()
}

type recordingSubscriber struct {
	subject string
	handler messaging.MessageHandler
	err     error
}

func (s *recordingSubscriber) Subscribe(subject string, handler messaging.MessageHandler) (*nats.Subscription, error) {
	s.subject = subject
	s.handler = handler
	return &nats.Subscription{}, s.err
}

func newDispatcher(t *testing.T) (*affiliate.CommandDispatcher, *affiliate.Orchestrator) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	o := affiliate.NewOrchestrator(context.Background(), store, affiliate.NewSettingsStore(store, affiliate.Settings{}),
		noopDriver{}, noopProfiles{}, affiliate.WithSearchInterval(time.Hour))
	t.Cleanup(func() { o.Shutdown(context.Background()) })
	return affiliate.NewCommandDispatcher(o, nil), o
}

func commandMsg(t *testing.T, action constants.ActionType, payload any) *nats.Msg {
	t.Helper()
	cmd := messaging.CommandMessage{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		cmd.Payload = raw
	}
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &nats.Msg{Subject: constants.CrawlerCommandSubject, Data: data}
}

func TestRegisterCommandHandlers(t *testing.T) {
	dispatcher, o := newDispatcher(t)
	sub := &recordingSubscriber{}

	require.NoError(t, RegisterCommandHandlers(context.Background(), sub, dispatcher))
	assert.Equal(t, constants.CrawlerCommandSubject, sub.subject)

	require.NoError(t, sub.handler(commandMsg(t, constants.StartCrawlingAction, affiliate.StartCommand{CreatorIDs: []string{"alice"}})))
	assert.True(t, o.Active())

	require.NoError(t, sub.handler(commandMsg(t, constants.StopCrawlingAction, nil)))
	assert.False(t, o.Active())
	assert.Equal(t, "paused", o.Status().State)

	require.NoError(t, sub.handler(commandMsg(t, constants.ContinueCrawlingAction, nil)))
	assert.True(t, o.Active())

	require.NoError(t, sub.handler(commandMsg(t, constants.ResetCrawlingAction, nil)))
	assert.False(t, o.Active())
	assert.Zero(t, o.Status().Total)
}

func TestCommandHandlerErrors(t *testing.T) {
	dispatcher, _ := newDispatcher(t)
	handler := commandHandler(context.Background(), dispatcher)

	assert.Error(t, handler(&nats.Msg{Data: []byte("not json")}))
	assert.ErrorIs(t, handler(commandMsg(t, "fly", nil)), affiliate.ErrUnknownAction)
	assert.ErrorIs(t, handler(commandMsg(t, constants.ContinueCrawlingAction, nil)), affiliate.ErrNothingToResume)
}

func TestRegisterCommandHandlersFailures(t *testing.T) {
	dispatcher, _ := newDispatcher(t)
	assert.Error(t, RegisterCommandHandlers(context.Background(), nil, dispatcher))

	sub := &recordingSubscriber{err: errors.New("not connected")}
	assert.Error(t, RegisterCommandHandlers(context.Background(), sub, dispatcher))
}
