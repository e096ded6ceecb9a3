package domain

import (
	"fmt"
	"strings"
)

// FormatAmount renders minor units as a decimal string with two fraction
// digits: 109900 -> "1099.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// NormalizeCurrency upper-cases and trims an ISO 4217 code.
func NormalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}
