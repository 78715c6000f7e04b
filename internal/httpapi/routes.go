package httpapi

import (
	"wallet-ledger/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the ledger API on an authenticated group.
// money wraps every route that moves funds (admission control).
func (h Handlers) Register(v1 *gin.RouterGroup, money ...gin.HandlerFunc) {
	staff := rbac.RequireAnyRole(rbac.RoleFinance, rbac.RoleAdmin)
	admin := rbac.RequireAnyRole(rbac.RoleAdmin)
	moving := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, money...), hf)
	}

	v1.GET("/wallet", h.GetOwnWallet)
	v1.GET("/wallet/history", h.WalletHistory)
	v1.PATCH("/wallet/auto-withdrawal", h.UpdateAutoWithdrawal)
	v1.GET("/wallets/:user_id", staff, h.GetUserWallet)

	v1.POST("/deposits", moving(h.Deposit)...)
	v1.POST("/withdrawals", moving(h.Withdraw)...)
	v1.POST("/transfers", moving(h.Transfer)...)
	v1.POST("/subscriptions", moving(h.ChargeSubscription)...)

	v1.GET("/invoices", h.GetInvoices)

	tx := v1.Group("/transactions")
	{
		tx.GET("", h.ListOwnTransactions)
		tx.GET("/reference/:reference_id", h.GetTransactionsByReference)
		tx.GET("/:id", h.GetTransaction)
		tx.GET("/:id/invoice", h.GetInvoiceData)
	}

	escrow := v1.Group("/escrow")
	{
		escrow.POST("/fund", moving(h.FundEscrow)...)
		escrow.POST("/release", moving(h.ReleaseEscrow)...)
		escrow.POST("/split", append([]gin.HandlerFunc{admin}, moving(h.SplitEscrow)...)...)
		escrow.POST("/refund", append([]gin.HandlerFunc{admin}, moving(h.RefundEscrow)...)...)
	}

	stats := v1.Group("/stats")
	{
		stats.GET("/earnings", h.EarningsStats)
		stats.GET("/spending", h.SpendingStats)
	}

	adm := v1.Group("/admin")
	{
		adm.GET("/transactions", staff, h.ListAllTransactions)
		adm.PATCH("/transactions/:id/status", admin, h.UpdateTransactionStatus)
		adm.GET("/wallets/:user_id/reconcile", staff, h.Reconcile)
		adm.GET("/metrics", staff, h.PlatformMetrics)
	}
}
