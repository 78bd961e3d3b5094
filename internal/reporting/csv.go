package reporting

import (
	"fmt"
	"strings"

	"competitor-intel/internal/domain"
)

// RenderCSV renders price gaps as CSV string.
func RenderCSV(gaps []domain.PriceGap) string {
	var sb strings.Builder

	// Header
	sb.WriteString("product_key,product_name,category,min_price,max_price,")
	sb.WriteString("price_difference,price_difference_percent,")
	sb.WriteString("cheapest_competitor,most_expensive_competitor,competitor_count\n")

	// Rows
	for _, g := range gaps {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.2f,%.2f,%.2f,%.2f,%s,%s,%d\n",
			g.ProductKey,
			csvEscape(g.ProductName),
			csvEscape(g.Category),
			g.MinPrice,
			g.MaxPrice,
			g.PriceDifference,
			g.PriceDifferencePercent,
			g.CheapestCompetitorID,
			g.MostExpensiveCompetitorID,
			g.CompetitorCount,
		))
	}

	return sb.String()
}

// csvEscape quotes fields containing commas or quotes.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
