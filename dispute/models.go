package dispute

import "time"

// State represents the lifecycle of a dispute record.
type State string

const (
	StateRaised   State = "raised"
	StateResolved State = "resolved"
)

// Record mirrors the disputes table, joined with agreement context for
// dashboard listings.
type Record struct {
	ID             string
	AgreementID    int64
	Employer       string
	RaisedBy       string
	State          State
	RaisedAt       time.Time
	ResolvedAt     *time.Time
	PayCounterpart int64
	RefundEmployer int64
}
