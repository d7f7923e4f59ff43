package draw

import "github.com/shopspring/decimal"

// Settlement of one resolved round, in token smallest units.
// Commission is floored by the integer division, so Commission + Prize
// always reassembles Bank exactly.
type Settlement struct {
	Bank       int64
	Commission int64
	Prize      int64
}

func Settle(participantCount int, entryFee, commissionRateBp int64) Settlement {
	bank := int64(participantCount) * entryFee
	commission := bank * commissionRateBp / 10000
	return Settlement{
		Bank:       bank,
		Commission: commission,
		Prize:      bank - commission,
	}
}

// FormatAmount renders a smallest-unit amount as a human decimal
// string. Presentation only; all arithmetic stays on int64.
func FormatAmount(amount int64, decimals int32) string {
	return decimal.New(amount, -decimals).String()
}
