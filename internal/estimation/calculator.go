package estimation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var ErrInvalid = errors.New("invalid estimation")

var (
	hundred  = decimal.NewFromInt(100)
	validate = validator.New()
)

// Calculate computes the settlement figures. Amounts are rounded to whole
// rupiah at each step and the installment is rounded up so the tenor covers
// the payable amount.
func Calculate(in Input) (Result, error) {
	if err := check(in); err != nil {
		return Result{}, err
	}
	total := decimal.Zero
	for _, d := range in.Debts {
		total = total.Add(decimal.NewFromInt(d.Outstanding))
	}
	discount := decimal.NewFromFloat(in.DiscountPercent).Div(hundred)
	fee := decimal.NewFromFloat(in.FeePercent).Div(hundred)

	settlement := total.Mul(decimal.NewFromInt(1).Sub(discount)).Round(0)
	savings := total.Sub(settlement)
	serviceFee := savings.Mul(fee).Round(0)
	payable := settlement.Add(serviceFee)

	dp := decimal.NewFromInt(in.DownPayment)
	if dp.GreaterThan(payable) {
		return Result{}, fmt.Errorf("%w: down payment exceeds total payable", ErrInvalid)
	}
	monthly := payable.Sub(dp).Div(decimal.NewFromInt(int64(in.TenorMonths))).Ceil()

	return Result{
		TotalDebt:          total.IntPart(),
		SettlementAmount:   settlement.IntPart(),
		Savings:            savings.IntPart(),
		ServiceFee:         serviceFee.IntPart(),
		TotalPayable:       payable.IntPart(),
		MonthlyInstallment: monthly.IntPart(),
	}, nil
}

func check(in Input) error {
	if len(in.Debts) == 0 {
		return fmt.Errorf("%w: at least one debt is required", ErrInvalid)
	}
	if err := validate.Struct(in); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			parts := make([]string, 0, len(ve))
			for _, fe := range ve {
				parts = append(parts, fe.Namespace()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
