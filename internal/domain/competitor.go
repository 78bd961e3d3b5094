package domain

// Competitor represents one monitored competitor.
// Corresponds to competitors table in PostgreSQL.
type Competitor struct {
	CompetitorID string // PRIMARY KEY
	Name         string // display name
	URL          string // storefront URL
	Enabled      bool   // disabled competitors are skipped by summaries
	CreatedAt    int64  // record creation timestamp (ms)
}
