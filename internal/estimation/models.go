// Package estimation computes debt-settlement offers: what a client pays
// after the negotiated discount, our fee, and the monthly installment.
package estimation

import "time"

// DebtItem is one creditor balance in whole rupiah.
type DebtItem struct {
	Creditor    string `json:"creditor" bson:"creditor" validate:"required"`
	Outstanding int64  `json:"outstanding" bson:"outstanding" validate:"gt=0"`
}

type Input struct {
	ClientID        string     `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Debts           []DebtItem `json:"debts" bson:"debts" validate:"dive"`
	DiscountPercent float64    `json:"discountPercent" bson:"discountPercent" validate:"gte=0,lte=100"`
	FeePercent      float64    `json:"feePercent" bson:"feePercent" validate:"gte=0,lte=100"`
	TenorMonths     int        `json:"tenorMonths" bson:"tenorMonths" validate:"gte=1,lte=120"`
	DownPayment     int64      `json:"downPayment" bson:"downPayment" validate:"gte=0"`
}

// Result holds the computed figures, all in whole rupiah.
type Result struct {
	TotalDebt          int64 `json:"totalDebt" bson:"totalDebt"`
	SettlementAmount   int64 `json:"settlementAmount" bson:"settlementAmount"`
	Savings            int64 `json:"savings" bson:"savings"`
	ServiceFee         int64 `json:"serviceFee" bson:"serviceFee"`
	TotalPayable       int64 `json:"totalPayable" bson:"totalPayable"`
	MonthlyInstallment int64 `json:"monthlyInstallment" bson:"monthlyInstallment"`
}

// Record is a saved estimation.
type Record struct {
	ID        string `json:"id" bson:"_id"`
	ClientID  string `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Input     Input  `json:"input" bson:"input"`
	Result    `bson:",inline"`
	CreatedBy string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
