package estimation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Result
	}{
		{
			name: "typical offer",
			in: Input{
				Debts:           []DebtItem{{Creditor: "Bank A", Outstanding: 30_000_000}, {Creditor: "Bank B", Outstanding: 20_000_000}},
				DiscountPercent: 40, FeePercent: 10, TenorMonths: 12, DownPayment: 2_000_000,
			},
			want: Result{
				TotalDebt: 50_000_000, SettlementAmount: 30_000_000, Savings: 20_000_000,
				ServiceFee: 2_000_000, TotalPayable: 32_000_000, MonthlyInstallment: 2_500_000,
			},
		},
		{
			name: "installment rounds up",
			in: Input{
				Debts:           []DebtItem{{Creditor: "Kartu", Outstanding: 10_000_000}},
				DiscountPercent: 0, FeePercent: 0, TenorMonths: 3,
			},
			want: Result{
				TotalDebt: 10_000_000, SettlementAmount: 10_000_000, TotalPayable: 10_000_000,
				MonthlyInstallment: 3_333_334,
			},
		},
		{
			name: "fractional percentages round to rupiah",
			in: Input{
				Debts:           []DebtItem{{Creditor: "Fintech", Outstanding: 1_234_567}},
				DiscountPercent: 33.5, FeePercent: 12.5, TenorMonths: 7,
			},
			// settlement 1234567*0.665=820987.055 -> 820987; savings 413580; fee 51697.5 -> 51698
			want: Result{
				TotalDebt: 1_234_567, SettlementAmount: 820_987, Savings: 413_580,
				ServiceFee: 51_698, TotalPayable: 872_685, MonthlyInstallment: 124_670,
			},
		},
		{
			name: "full discount with down payment covering all",
			in: Input{
				Debts:           []DebtItem{{Creditor: "X", Outstanding: 5_000_000}},
				DiscountPercent: 100, FeePercent: 20, TenorMonths: 1, DownPayment: 1_000_000,
			},
			want: Result{
				TotalDebt: 5_000_000, Savings: 5_000_000, ServiceFee: 1_000_000, TotalPayable: 1_000_000,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Calculate(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCalculateValidation(t *testing.T) {
	base := func() Input {
		return Input{Debts: []DebtItem{{Creditor: "A", Outstanding: 1000}}, DiscountPercent: 10, FeePercent: 10, TenorMonths: 6}
	}
	mutations := map[string]func(*Input){
		"no debts":           func(in *Input) { in.Debts = nil },
		"zero outstanding":   func(in *Input) { in.Debts[0].Outstanding = 0 },
		"missing creditor":   func(in *Input) { in.Debts[0].Creditor = "" },
		"discount above 100": func(in *Input) { in.DiscountPercent = 100.5 },
		"negative fee":       func(in *Input) { in.FeePercent = -1 },
		"zero tenor":         func(in *Input) { in.TenorMonths = 0 },
		"tenor too long":     func(in *Input) { in.TenorMonths = 121 },
		"negative dp":        func(in *Input) { in.DownPayment = -1 },
		"dp above payable":   func(in *Input) { in.DownPayment = 1000 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := base()
			mutate(&in)
			_, err := Calculate(in)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}
