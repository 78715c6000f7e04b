package httpapi

import (
	"net/http"
	"strconv"

	"wallet-ledger/internal/audit"
	"wallet-ledger/internal/auth"
	"wallet-ledger/internal/rbac"
	"wallet-ledger/internal/reporting"
	"wallet-ledger/internal/wallet"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Wallet  *wallet.Service
	Reports *reporting.Service
	Audit   *audit.Service
}

type caller struct {
	userID string
	role   string
}

func (c caller) privileged() bool { return rbac.IsPrivileged(c.role) }

func callerFrom(c *gin.Context) (caller, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return caller{}, false
	}
	role, _ := auth.Role(c.Request.Context())
	return caller{userID: uid, role: role}, true
}

// auditAdmin records a privileged call. Failures are logged only.
func (h Handlers) auditAdmin(c *gin.Context, who caller, action, referenceID string, meta map[string]string) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.LogAdminAction(c.Request.Context(), who.userID, who.role, c.ClientIP(), action, referenceID, meta); err != nil {
		logger.FromGin(c).Warn("admin audit not recorded", "action", action, "err", err)
	}
}

// --- Wallet ---

func (h Handlers) GetOwnWallet(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	w, err := h.Wallet.GetWallet(c.Request.Context(), who.userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GetUserWallet reads another user's wallet. RBAC: finance, admin.
func (h Handlers) GetUserWallet(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	w, err := h.Wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditAdmin(c, who, "wallet.read", userID, nil)
	c.JSON(http.StatusOK, w)
}

func (h Handlers) WalletHistory(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	txs, err := h.Wallet.WalletHistory(c.Request.Context(), who.userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txs})
}

// Reconcile replays a user's legs against the stored wallet. RBAC: finance, admin.
func (h Handlers) Reconcile(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	rep, err := h.Wallet.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditAdmin(c, who, "wallet.reconcile", userID, map[string]string{"consistent": strconv.FormatBool(rep.Consistent)})
	c.JSON(http.StatusOK, rep)
}

type autoWithdrawalRequest struct {
	Enabled   bool             `json:"enabled"`
	Threshold *decimal.Decimal `json:"threshold"`
	Schedule  string           `json:"schedule"`
	MethodID  string           `json:"methodId"`
}

func (h Handlers) UpdateAutoWithdrawal(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req autoWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w, err := h.Wallet.UpdateAutoWithdrawal(c.Request.Context(), who.userID, wallet.AutoWithdrawalSettings{
		Enabled:   req.Enabled,
		Threshold: req.Threshold,
		Schedule:  req.Schedule,
		MethodID:  req.MethodID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// --- Money movement ---

type depositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"referenceId"`
}

func (h Handlers) Deposit(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w, err := h.Wallet.Deposit(c.Request.Context(), who.userID, req.Amount, req.ReferenceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h Handlers) Withdraw(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w, err := h.Wallet.Withdraw(c.Request.Context(), who.userID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type subscriptionRequest struct {
	PlanID string          `json:"planId"`
	Amount decimal.Decimal `json:"amount"`
}

func (h Handlers) ChargeSubscription(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	w, err := h.Wallet.ChargeSubscription(c.Request.Context(), who.userID, req.PlanID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

type transferRequest struct {
	ToUserID    string          `json:"toUserId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ReferenceID string          `json:"referenceId"`
}

func (h Handlers) Transfer(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Wallet.Transfer(c.Request.Context(), wallet.TransferRequest{
		FromUserID:  who.userID,
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Description: req.Description,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// --- Escrow ---

type fundEscrowRequest struct {
	ContractID  string          `json:"contractId"`
	MilestoneID string          `json:"milestoneId"`
	Amount      decimal.Decimal `json:"amount"`
}

func (h Handlers) FundEscrow(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req fundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	hold, err := h.Wallet.FundEscrow(c.Request.Context(), who.userID, req.ContractID, req.MilestoneID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hold)
}

type releaseEscrowRequest struct {
	ContractID  string `json:"contractId"`
	MilestoneID string `json:"milestoneId"`
	PayeeID     string `json:"payeeId"`
	Description string `json:"description"`
}

// ReleaseEscrow pays a held milestone. The funder releases their own holds;
// privileged roles may release any hold.
func (h Handlers) ReleaseEscrow(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req releaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	requestedBy := who.userID
	if who.privileged() {
		requestedBy = ""
	}
	res, err := h.Wallet.ReleaseEscrow(c.Request.Context(), wallet.ReleaseRequest{
		ContractID:  req.ContractID,
		MilestoneID: req.MilestoneID,
		PayeeID:     req.PayeeID,
		Description: req.Description,
		RequestedBy: requestedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if requestedBy == "" {
		h.auditAdmin(c, who, "escrow.release", req.MilestoneID, map[string]string{"contract_id": req.ContractID, "payee_id": req.PayeeID})
	}
	c.JSON(http.StatusOK, res)
}

type splitEscrowRequest struct {
	ContractID   string          `json:"contractId"`
	MilestoneID  string          `json:"milestoneId"`
	PayeeID      string          `json:"payeeId"`
	PayeePercent decimal.Decimal `json:"payeePercent"`
	Description  string          `json:"description"`
}

// SplitEscrow divides a held milestone between payee and funder. RBAC: admin.
func (h Handlers) SplitEscrow(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req splitEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.Wallet.SplitEscrow(c.Request.Context(), wallet.SplitRequest{
		ContractID:   req.ContractID,
		MilestoneID:  req.MilestoneID,
		PayeeID:      req.PayeeID,
		PayeePercent: req.PayeePercent,
		Description:  req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditAdmin(c, who, "escrow.split", req.MilestoneID, map[string]string{
		"contract_id":   req.ContractID,
		"payee_id":      req.PayeeID,
		"payee_percent": req.PayeePercent.String(),
	})
	c.JSON(http.StatusOK, res)
}

type refundEscrowRequest struct {
	ContractID  string `json:"contractId"`
	MilestoneID string `json:"milestoneId"`
}

// RefundEscrow returns a held milestone to its funder. RBAC: admin.
func (h Handlers) RefundEscrow(c *gin.Context) {
	who, ok := callerFrom(c)
	if !ok {
		return
	}
	var req refundEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	hold, err := h.Wallet.RefundEscrow(c.Request.Context(), req.ContractID, req.MilestoneID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.auditAdmin(c, who, "escrow.refund", req.MilestoneID, map[string]string{"contract_id": req.ContractID})
	c.JSON(http.StatusOK, hold)
}
