package util

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

func RoundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func RoundMoney(v float64) float64 {
	return RoundTo(v, 2)
}

func RoundPercent(v float64) float64 {
	return RoundTo(v, 1)
}

// Decimal lifts a float amount into the decimal budget ledger.
func Decimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// SplitBudget turns a ledger total into the float total and remaining of a
// cart such that total+remaining == maxBudget in float64. Both start at the
// nearest float to their 2dp value; remaining is moved by a few ulps to close
// the sum, and when no such remaining exists the total is moved by one ulp.
func SplitBudget(maxBudget float64, total decimal.Decimal) (float64, float64) {
	spent := total.Round(2).InexactFloat64()
	left := Decimal(maxBudget).Sub(total).Round(2).InexactFloat64()
	for _, s := range []float64{spent, math.Nextafter(spent, math.Inf(1)), math.Nextafter(spent, math.Inf(-1))} {
		if l, ok := closeSum(maxBudget, s, left); ok {
			return s, l
		}
	}
	return spent, left
}

func closeSum(target, spent, left float64) (float64, bool) {
	for i := 0; i < 4; i++ {
		switch sum := spent + left; {
		case sum == target:
			return left, true
		case sum < target:
			left = math.Nextafter(left, math.Inf(1))
		default:
			left = math.Nextafter(left, math.Inf(-1))
		}
	}
	return left, spent+left == target
}

// Utilization is total as a percentage of maxBudget; 0 when there is no budget.
func Utilization(maxBudget float64, total decimal.Decimal) float64 {
	if maxBudget <= 0 {
		return 0
	}
	return total.Div(Decimal(maxBudget)).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func FormatMoney(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func Plural(n int, singular string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %ss", n, singular)
}

// FormatCount groups thousands with commas: 12345 -> "12,345".
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
