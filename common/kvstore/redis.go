package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/LexiconIndonesia/creator-crawler-service/common/redis"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "kv:"

// RedisStore keeps each scope in one hash and announces writes over pub/sub.
type RedisStore struct {
	client *redis.RedisClient
}

func NewRedisStore(client *redis.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func hashKey(scope Scope) string {
	return keyPrefix + string(scope)
}

func changesChannel(scope Scope) string {
	return keyPrefix + string(scope) + ":changes"
}

func (s *RedisStore) Load(ctx context.Context, scope Scope, dst any) error {
	if err := validScope(scope); err != nil {
		return err
	}
	fields, err := s.client.HGetAll(ctx, hashKey(scope))
	if err != nil {
		return fmt.Errorf("loading %s scope: %w", scope, err)
	}

	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		raw[k] = json.RawMessage(v)
	}
	return decodeInto(raw, dst)
}

func (s *RedisStore) Set(ctx context.Context, scope Scope, values map[string]any) error {
	if err := validScope(scope); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	encoded, keys, err := encodeValues(values)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	fields := make(map[string]string, len(encoded))
	for k, v := range encoded {
		fields[k] = string(v)
	}
	msg, err := json.Marshal(Change{Scope: scope, Keys: keys})
	if err != nil {
		return err
	}

	if err := s.client.HSetAndPublish(ctx, hashKey(scope), fields, changesChannel(scope), msg); err != nil {
		return fmt.Errorf("writing %s scope: %w", scope, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, scope Scope) error {
	if err := validScope(scope); err != nil {
		return err
	}
	msg, err := json.Marshal(Change{Scope: scope, Cleared: true})
	if err != nil {
		return err
	}
	if err := s.client.DeleteAndPublish(ctx, hashKey(scope), changesChannel(scope), msg); err != nil {
		return fmt.Errorf("clearing %s scope: %w", scope, err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context, scope Scope) (<-chan Change, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	sub := s.client.Subscribe(ctx, changesChannel(scope))
	// Wait for the subscription confirmation so no change published after
	// Watch returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s changes: %w", scope, err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed kv change")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
