package billing

import "github.com/dustin/go-humanize"

// FormatAmount renders a currency value with grouping and two decimals, e.g. 1,250.50
func FormatAmount(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}
