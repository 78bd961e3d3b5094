package reporting

import (
	"time"

	"competitor-intel/internal/domain"
)

// Report is the full competitor-intelligence report: one section per
// enabled competitor plus the cross-competitor comparison.
type Report struct {
	// Metadata
	GeneratedAt     time.Time
	TrendWindowDays int
	ChangeWindowHours int

	// Per-competitor sections, sorted by competitor ID.
	Competitors []CompetitorSection

	// Cross-competitor comparison over the whole catalog.
	Comparison *domain.PriceComparison
}

// CompetitorSection is one competitor's slice of the report. Analysis
// failures degrade to nil sub-results with DataError set, so one bad
// competitor never sinks the whole report.
type CompetitorSection struct {
	CompetitorID string
	Name         string

	Trends          *domain.TrendReport
	Profile         *domain.StrategyProfile
	Changes         *domain.ChangeSet
	ChangeCounts    domain.ChangeCounts
	Recommendations []domain.Recommendation

	DataError string
}
