package events

import (
	"context"
	"encoding/json"
	"errors"

	"wallet-ledger/internal/wallet"

	"github.com/redis/go-redis/v9"
)

// Channel carries every committed ledger event as JSON.
const Channel = "ledger_events"

// Publisher is the subset of a redis client used to publish.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes ledger events for downstream consumers
// (notifications, analytics). It is a wallet.EventSink.
type RedisSink struct {
	rdb     Publisher
	channel string
}

func NewRedisSink(rdb Publisher) *RedisSink {
	return &RedisSink{rdb: rdb, channel: Channel}
}

type message struct {
	Service string `json:"service"`
	wallet.Event
}

func (s *RedisSink) Record(ctx context.Context, e wallet.Event) error {
	if s.rdb == nil {
		return errors.New("events: redis client not configured")
	}
	payload, err := json.Marshal(message{Service: "wallet-ledger", Event: e})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, payload).Err()
}

// Decode parses a published ledger event.
func Decode(payload []byte) (wallet.Event, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return wallet.Event{}, err
	}
	if m.Type == "" {
		return wallet.Event{}, errors.New("events: missing type")
	}
	return m.Event, nil
}
