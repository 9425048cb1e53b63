package provider

import "github.com/shopspring/decimal"

var (
	DefaultGatewayPercent = decimal.RequireFromString("2.2")
	DefaultManualFlatFee  = decimal.NewFromInt(100)

	hundred = decimal.NewFromInt(100)
)

// GatewayQuote grosses the amount up so that the gateway's percentage comes
// out of the fee rather than the credited amount.
func GatewayQuote(amount, percent decimal.Decimal) FeeQuote {
	rate := percent.Div(hundred)
	total := amount.Div(decimal.NewFromInt(1).Sub(rate)).Round(2)
	return FeeQuote{
		Amount: amount,
		Fee:    total.Sub(amount).Round(2),
		Total:  total,
	}
}

// FlatQuote adds a fixed fee on top of the amount.
func FlatQuote(amount, fee decimal.Decimal) FeeQuote {
	return FeeQuote{
		Amount: amount,
		Fee:    fee,
		Total:  amount.Add(fee),
	}
}

// toMinorUnits converts naira to kobo.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
