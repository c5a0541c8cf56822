package evaluator

import (
	"fmt"
	"strings"
)

// Verdict returns the operator-facing verdict marker.
func (o *Opportunity) Verdict() string {
	if o.Favorable {
		return "✅ арбитражить"
	}
	return "❌ не арбитражить"
}

// TotalSpreadPct is the price edge plus the funding tailwind, the number an
// operator compares against total round-trip fees.
func (o *Opportunity) TotalSpreadPct() float64 {
	total := o.PriceSpreadPct
	if o.FundingSpreadPct != nil {
		total += *o.FundingSpreadPct
	}
	return total
}

// Line renders the one-line summary for sinks and logs:
// "COIN Long (A), Short (B) Спред цен: 2.000% | Фанд: 1.770% (L: -2.00% 8 мин | S: 0.23% 480 мин) | Общий: 3.770% ✅ арбитражить".
func (o *Opportunity) Line() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Long (%s), Short (%s) Спред цен: %.3f%%",
		o.Coin, o.LongVenue, o.ShortVenue, o.PriceSpreadPct)
	if o.FundingSpreadPct != nil {
		fmt.Fprintf(&sb, " | Фанд: %.3f%% (L: %.2f%% %s | S: %.2f%% %s)",
			*o.FundingSpreadPct,
			fundingPct(o.Long),
			minutesLabel(o.MinutesUntilFunding),
			fundingPct(o.Short),
			minutesLabel(o.MinutesShort))
	}
	fmt.Fprintf(&sb, " | Общий: %.3f%% %s", o.TotalSpreadPct(), o.Verdict())
	if len(o.Reasons) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(o.Reasons, ", "))
	}
	return sb.String()
}

func fundingPct(d VenueData) float64 {
	if d.Funding == nil {
		return 0
	}
	return d.Funding.Rate * 100
}

func minutesLabel(m *int) string {
	if m == nil {
		return "— мин"
	}
	return fmt.Sprintf("%d мин", *m)
}
