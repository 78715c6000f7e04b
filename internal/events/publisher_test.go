package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-ledger/internal/wallet"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	f.channel = channel
	f.payload, _ = message.([]byte)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func TestRedisSink_PublishesDecodableEvent(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRedisSink(pub)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	err := sink.Record(context.Background(), wallet.Event{
		Type:        wallet.EventEscrowFunded,
		ActorID:     "client",
		Amount:      decimal.RequireFromString("42.10"),
		ReferenceID: "m-1",
		OccurredAt:  at,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if pub.channel != Channel {
		t.Fatalf("expected channel %s, got %s", Channel, pub.channel)
	}

	got, err := Decode(pub.payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != wallet.EventEscrowFunded || got.ReferenceID != "m-1" || !got.Amount.Equal(decimal.RequireFromString("42.1")) {
		t.Fatalf("unexpected event %+v", got)
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("unexpected time %s", got.OccurredAt)
	}
}

func TestRedisSink_PropagatesPublishError(t *testing.T) {
	sink := NewRedisSink(&fakePublisher{err: errors.New("connection refused")})
	if err := sink.Record(context.Background(), wallet.Event{Type: wallet.EventDepositCompleted}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecode_RejectsUntypedPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"service":"wallet-ledger"}`)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error")
	}
}
