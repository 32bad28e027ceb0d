// Package crawlers connects the crawler commands to the message broker.
package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
	"github.com/LexiconIndonesia/creator-crawler-service/common/messaging"
	"github.com/LexiconIndonesia/creator-crawler-service/crawlers/affiliate"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const commandTimeout = 30 * time.Second

// Subscriber is satisfied by *messaging.NatsBroker.
type Subscriber interface {
	Subscribe(subject string, handler messaging.MessageHandler) (*nats.Subscription, error)
}

// CommandReply is sent back when a command message carries a reply subject.
type CommandReply struct {
	OK     bool                     `json:"ok"`
	Error  string                   `json:"error,omitempty"`
	Result *affiliate.CommandResult `json:"result,omitempty"`
}

// RegisterCommandHandlers subscribes the dispatcher to the command subject.
func RegisterCommandHandlers(ctx context.Context, broker Subscriber, dispatcher *affiliate.CommandDispatcher) error {
	if broker == nil {
		return fmt.Errorf("nats client is nil")
	}
	log.Info().Str("subject", constants.CrawlerCommandSubject).Msg("Registering crawler command handler")

	if _, err := broker.Subscribe(constants.CrawlerCommandSubject, commandHandler(ctx, dispatcher)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", constants.CrawlerCommandSubject, err)
	}
	return nil
}

func commandHandler(ctx context.Context, dispatcher *affiliate.CommandDispatcher) messaging.MessageHandler {
	return func(msg *nats.Msg) error {
		log.Info().Str("subject", msg.Subject).Msg("Received crawler command")

		var cmd messaging.CommandMessage
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			reply(msg, CommandReply{Error: "invalid command message"})
			return fmt.Errorf("failed to unmarshal command: %w", err)
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		res, err := dispatcher.Dispatch(cmdCtx, cmd)
		if err != nil {
			reply(msg, CommandReply{Error: err.Error()})
			return fmt.Errorf("command %s failed: %w", cmd.Action, err)
		}
		reply(msg, CommandReply{OK: true, Result: &res})
		return nil
	}
}

// reply is a no-op for fire-and-forget publishes.
func reply(msg *nats.Msg, r CommandReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode command reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Warn().Err(err).Str("reply", msg.Reply).Msg("Failed to send command reply")
	}
}
