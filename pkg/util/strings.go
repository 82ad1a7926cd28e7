package util

import "strconv"

// FormatPrice renders a price with two decimals, as written to CSV artifacts.
func FormatPrice(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
