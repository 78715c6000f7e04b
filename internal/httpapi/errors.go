package httpapi

import (
	"errors"
	"net/http"

	"wallet-ledger/internal/reporting"
	"wallet-ledger/internal/wallet"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps ledger errors onto HTTP statuses. Internal faults get a
// generic message; details were already logged by the service.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, wallet.ErrInvalidArgument), errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid argument"
	case errors.Is(err, wallet.ErrInvalidTransition):
		return http.StatusBadRequest, "invalid status transition"
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient funds"
	case errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.Is(err, wallet.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, wallet.ErrEscrowConflict):
		return http.StatusConflict, "escrow already held for milestone"
	default:
		return http.StatusInternalServerError, "transfer failed"
	}
}
