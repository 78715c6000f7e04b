package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wallet-ledger/internal/config"
	"wallet-ledger/internal/fees"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolverHarness(t *testing.T, handler http.HandlerFunc) harness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.Now
	sink := &recordingSink{}
	resolver := fees.NewResolver(config.FeesConfig{
		ServiceURL:     srv.URL,
		DefaultPercent: d("10"),
		Timeout:        50 * time.Millisecond,
	})
	svc := NewService(store, resolver, Options{Clock: clock.Now, Events: sink})
	return harness{store: store, svc: svc, clock: clock, sink: sink}
}

func TestTransfer_FeeServiceFailureUsesDefaultPercent(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"slow response": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			_, _ = w.Write([]byte(`{"value":"25"}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			h := newResolverHarness(t, handler)
			ctx := context.Background()
			_, err := h.svc.Deposit(ctx, "payer", d("100"), "")
			require.NoError(t, err)

			res, err := h.svc.Transfer(ctx, TransferRequest{FromUserID: "payer", ToUserID: "payee", Amount: d("100")})
			require.NoError(t, err)

			inv, err := h.store.GetInvoice(ctx, res.InvoiceID)
			require.NoError(t, err)
			requireDecimal(t, "10", inv.FeeAmount)
			requireDecimal(t, "90", inv.Amount)

			payer, _ := h.svc.GetWallet(ctx, "payer")
			payee, _ := h.svc.GetWallet(ctx, "payee")
			requireDecimal(t, "0", payer.Balance)
			requireDecimal(t, "90", payee.PendingBalance)
			assert.Contains(t, h.sink.types(), EventTransferCompleted)
		})
	}
}

func TestTransfer_FeeServiceValueIsApplied(t *testing.T) {
	h := newResolverHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/configs/PLATFORM_FEE_PERCENT", r.URL.Path)
		_, _ = w.Write([]byte(`{"value":"5"}`))
	})
	ctx := context.Background()
	_, err := h.svc.Deposit(ctx, "payer", d("100"), "")
	require.NoError(t, err)

	res, err := h.svc.Transfer(ctx, TransferRequest{FromUserID: "payer", ToUserID: "payee", Amount: d("100")})
	require.NoError(t, err)

	inv, err := h.store.GetInvoice(ctx, res.InvoiceID)
	require.NoError(t, err)
	requireDecimal(t, "5", inv.FeeAmount)
	requireDecimal(t, "95", inv.Amount)
}
