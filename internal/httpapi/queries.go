package httpapi

import (
	"net/http"
	"strconv"

	"wallet-ledger/internal/reporting"
	"wallet-ledger/internal/wallet"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetInvoices(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	invs, err := h.Wallet.GetInvoices(c.Request.Context(), who.userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": invs})
}

func (h Handlers) GetTransaction(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	t, err := h.Wallet.GetTransaction(c.Request.Context(), c.Param("id"), who.userID, who.privileged())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// GetInvoiceData is visible to the leg's owner and privileged roles.
func (h Handlers) GetInvoiceData(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := h.Wallet.GetTransaction(c.Request.Context(), id, who.userID, who.privileged()); err != nil {
		writeError(c, err)
		return
	}
	data, err := h.Wallet.GetInvoiceData(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// GetTransactionsByReference lists legs tagged with a reference. Plain users
// only see legs on their own wallet.
func (h Handlers) GetTransactionsByReference(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	txs, err := h.Wallet.GetTransactionsByReference(ctx, c.Param("reference_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !who.privileged() {
		w, err := h.Wallet.GetWallet(ctx, who.userID)
		if err != nil {
			writeError(c, err)
			return
		}
		own := make([]wallet.Transaction, 0, len(txs))
		for _, t := range txs {
			if t.WalletID == w.ID {
				own = append(own, t)
			}
		}
		txs = own
	}
	c.JSON(http.StatusOK, gin.H{"data": txs})
}

func (h Handlers) ListOwnTransactions(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	h.listTransactions(c, who.userID)
}

// ListAllTransactions pages across every wallet, optionally narrowed by ?userId. RBAC: finance, admin.
func (h Handlers) ListAllTransactions(c *gin.Context) {
	h.listTransactions(c, c.Query("userId"))
}

func (h Handlers) listTransactions(c *gin.Context, userID string) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	page, err := h.Wallet.ListTransactions(c.Request.Context(), wallet.TransactionFilter{
		UserID: userID,
		Type:   wallet.TransactionType(c.Query("type")),
		Status: wallet.TransactionStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type statusRequest struct {
	Status wallet.TransactionStatus `json:"status"`
}

// UpdateTransactionStatus marks a leg REFUNDED or DISPUTED. RBAC: admin.
func (h Handlers) UpdateTransactionStatus(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := c.Param("id")
	t, err := h.Wallet.UpdateTransactionStatus(c.Request.Context(), id, req.Status, who.userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditAdmin(c, who, "transaction.status", id, map[string]string{"status": string(req.Status)})
	c.JSON(http.StatusOK, t)
}

// --- Reporting ---

func (h Handlers) EarningsStats(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	out, err := h.Reports.EarningsStats(c.Request.Context(), who.userID, period(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h Handlers) SpendingStats(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	out, err := h.Reports.SpendingStats(c.Request.Context(), who.userID, period(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// PlatformMetrics aggregates completed legs. RBAC: finance, admin.
func (h Handlers) PlatformMetrics(c *gin.Context) {
	m, err := h.Reports.Metrics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func period(c *gin.Context) reporting.Period {
	return reporting.Period(c.DefaultQuery("period", string(reporting.PeriodMonthly)))
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
