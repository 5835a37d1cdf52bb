package models

import "fmt"

// FormatCents renders an integer minor-unit amount as a two-decimal string
// for API responses and gateway payloads that want decimal amounts.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
