// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount formats an amount with two decimals and thousands separators.
func FormatAmount(amount decimal.Decimal) string {
	str := amount.Abs().StringFixed(2)
	parts := strings.SplitN(str, ".", 2)

	result := groupThousands(parts[0]) + "." + parts[1]
	if amount.IsNegative() {
		result = "-" + result
	}
	return result
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatCompact formats an amount in compact form (K/M/B).
func FormatCompact(amount decimal.Decimal) string {
	f := amount.InexactFloat64()
	abs := f
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", f/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", f/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", f/1e3)
	}
	return amount.StringFixed(2)
}

// FormatRatio formats part/total as a percentage; an empty total yields "-".
func FormatRatio(part, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}
