package utils

import (
	"context"
	"testing"
	"time"
)

func TestInFlightScriptsInitialized(t *testing.T) {
	if inFlightAcquireScript == nil || inFlightReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireInFlight_RejectsBadArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireInFlight(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseInFlight(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestInFlightKey(t *testing.T) {
	if got := InFlightKey("u1"); got != "ledger:inflight:u1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
