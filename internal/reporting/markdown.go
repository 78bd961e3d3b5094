package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Competitor Intelligence Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Trend window: %d days | Change window: %d hours\n\n",
		r.TrendWindowDays, r.ChangeWindowHours))

	for _, s := range r.Competitors {
		sb.WriteString(fmt.Sprintf("## %s (%s)\n\n", s.Name, s.CompetitorID))

		if s.DataError != "" {
			sb.WriteString(fmt.Sprintf("Data error: %s\n\n", s.DataError))
			continue
		}

		// Strategy
		if s.Profile != nil {
			sb.WriteString(fmt.Sprintf("**Strategy**: %s (confidence %.0f%%)\n\n",
				s.Profile.Strategy, s.Profile.ConfidencePercent))
			st := s.Profile.Statistics
			sb.WriteString("| Metric | Value |\n")
			sb.WriteString("|--------|-------|\n")
			sb.WriteString(fmt.Sprintf("| Products | %d |\n", st.TotalProducts))
			sb.WriteString(fmt.Sprintf("| Average Price | %.2f |\n", st.AveragePrice))
			sb.WriteString(fmt.Sprintf("| Median Price | %.2f |\n", st.MedianPrice))
			sb.WriteString(fmt.Sprintf("| Discount Rate | %.1f%% |\n", st.DiscountRatePercent))
			sb.WriteString(fmt.Sprintf("| Avg Discount Depth | %.1f%% |\n", st.AvgDiscountDepthPercent))
			sb.WriteString("\n")
		} else {
			sb.WriteString("**Strategy**: unknown (insufficient data)\n\n")
		}

		// Trends
		if s.Trends != nil {
			sum := s.Trends.Summary
			sb.WriteString(fmt.Sprintf("**Trends**: %d increasing, %d decreasing, %d stable, %d volatile\n\n",
				sum.IncreasingCount, sum.DecreasingCount, sum.StableCount, sum.VolatileCount))
			if len(s.Trends.Products) > 0 {
				sb.WriteString("| Product | Direction | First | Last | Change% | Volatility% |\n")
				sb.WriteString("|---------|-----------|-------|------|---------|-------------|\n")
				for _, t := range s.Trends.Products {
					sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %.2f | %.2f | %.2f |\n",
						t.Name, t.Direction, t.FirstPrice, t.LastPrice,
						t.MagnitudePercent, t.VolatilityPercent))
				}
				sb.WriteString("\n")
			}
		}

		// Changes
		counts := s.ChangeCounts
		sb.WriteString(fmt.Sprintf("**Changes**: %d new products, %d new promotions, %d increases, %d decreases, %d back in stock, %d out of stock\n\n",
			counts.TotalNewProducts, counts.TotalNewPromotions,
			counts.TotalPriceIncreases, counts.TotalPriceDecreases,
			counts.TotalBackInStock, counts.TotalOutOfStock))

		// Recommendations
		if len(s.Recommendations) > 0 {
			sb.WriteString("**Recommendations**:\n\n")
			for _, rec := range s.Recommendations {
				sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", rec.Priority, rec.Title, rec.Description))
			}
			sb.WriteString("\n")
		}
	}

	// Cross-competitor comparison
	sb.WriteString("## Cross-Competitor Price Gaps\n\n")
	if r.Comparison != nil && len(r.Comparison.Gaps) > 0 {
		sb.WriteString("| Product | Min | Max | Gap | Gap% | Cheapest | Most Expensive |\n")
		sb.WriteString("|---------|-----|-----|-----|------|----------|----------------|\n")
		for _, gap := range r.Comparison.Gaps {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.2f | %.2f | %.2f | %s | %s |\n",
				gap.ProductName, gap.MinPrice, gap.MaxPrice,
				gap.PriceDifference, gap.PriceDifferencePercent,
				gap.CheapestCompetitorID, gap.MostExpensiveCompetitorID))
		}
	} else {
		sb.WriteString("No overlapping products across competitors.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
