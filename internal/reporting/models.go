package reporting

import "github.com/shopspring/decimal"

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}

// PeriodTotal is one bucket of an earnings or spending series.
// Period labels: YYYY-MM-DD, YYYY-Www (ISO week) or YYYY-MM.
type PeriodTotal struct {
	Period string          `json:"period"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// PlatformMetrics summarises COMPLETED transaction legs.
type PlatformMetrics struct {
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	TotalFees        decimal.Decimal `json:"totalFees"`
	TotalPayments    int             `json:"totalPayments"`
	TotalWithdrawals int             `json:"totalWithdrawals"`
	TransactionCount int             `json:"transactionCount"`
}
