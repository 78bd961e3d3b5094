package domain

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// String returns the string representation of Priority.
func (p Priority) String() string {
	return string(p)
}

// Rank returns a sortable rank, lower is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Recommendation is one ranked, human-readable action item derived from
// the strategy profile and change summary of a competitor.
type Recommendation struct {
	Type             string   // stable rule identifier
	Priority         Priority // high | medium | low
	Title            string
	Description      string
	AffectedProducts int   // products behind the triggering condition
	TriggeredAt      int64 // timestamp of the most recent triggering event
}
