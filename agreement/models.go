package agreement

import "time"

// Mode distinguishes the two structural shapes an agreement can take.
type Mode string

const (
	// ModePayroll agreements pay an ordered roster of employees a fixed
	// salary per elapsed period.
	ModePayroll Mode = "payroll"
	// ModeEscrow agreements pay a single contributor, either on a fixed
	// time schedule or per completed milestone.
	ModeEscrow Mode = "escrow"
)

// Status is the lifecycle state of an agreement.
type Status string

const (
	StatusCreated   Status = "created"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
	StatusCompleted Status = "completed"
)

// DisputeState summarises the dispute flag carried on the agreement row.
type DisputeState string

const (
	DisputeNone     DisputeState = "none"
	DisputeRaised   DisputeState = "raised"
	DisputeResolved DisputeState = "resolved"
)

// Employee is one payroll roster entry. Claimed periods advance
// independently per employee.
type Employee struct {
	Address         string
	SalaryPerPeriod int64
	ClaimedPeriods  int
}

// Milestone is a discrete unit of work with a fixed payout. Completed is
// set by the employer's approval; Claimed flips when the payout settles.
type Milestone struct {
	Amount    int64
	Completed bool
	Claimed   bool
}

// Agreement mirrors the agreements table plus its employee and milestone
// child rows. Amounts are integral token units; the ledger never represents
// fractions or negative balances.
type Agreement struct {
	ID          int64
	Mode        Mode
	Status      Status
	Employer    string
	Contributor string
	Token       string

	TotalLocked    int64
	ClaimedAmount  int64
	RefundedAmount int64

	// Time-based schedule. PeriodSeconds also governs payroll accrual;
	// a milestone-shaped escrow agreement leaves all three zero.
	PeriodSeconds   int64
	NumPeriods      int
	AmountPerPeriod int64
	ClaimedPeriods  int

	GracePeriodSeconds int64

	CreatedAt   time.Time
	ActivatedAt *time.Time
	CancelledAt *time.Time

	DisputeState    DisputeState
	DisputeRaisedAt *time.Time
	Arbiter         string

	Employees  []Employee
	Milestones []Milestone
}

// Dispute is the detail record behind the agreement's dispute flag.
type Dispute struct {
	ID             string
	AgreementID    int64
	RaisedBy       string
	State          DisputeState
	RaisedAt       time.Time
	ResolvedAt     *time.Time
	PayCounterpart int64
	RefundEmployer int64
}

// Event is a fire-and-forget notification persisted through the store's
// outbox in the same transaction as the state change it describes.
type Event struct {
	ID          string
	Topic       string
	AgreementID int64
	Payload     map[string]any
	CreatedAt   time.Time
}

// Outbox topics emitted by the engine.
const (
	TopicAgreementCreated   = "agreement.created"
	TopicAgreementActivated = "agreement.activated"
	TopicAgreementPaused    = "agreement.paused"
	TopicAgreementResumed   = "agreement.resumed"
	TopicAgreementCancelled = "agreement.cancelled"
	TopicAgreementCompleted = "agreement.completed"
	TopicClaimSettled       = "claim.settled"
	TopicFundsLocked        = "funds.locked"
	TopicDisputeRaised      = "dispute.raised"
	TopicDisputeResolved    = "dispute.resolved"
)

// Clone returns a deep copy. Services mutate clones and persist them in a
// single store save so a failed invocation leaves no partial update behind.
func (a *Agreement) Clone() *Agreement {
	dup := *a
	if a.ActivatedAt != nil {
		t := *a.ActivatedAt
		dup.ActivatedAt = &t
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		dup.CancelledAt = &t
	}
	if a.DisputeRaisedAt != nil {
		t := *a.DisputeRaisedAt
		dup.DisputeRaisedAt = &t
	}
	if a.Employees != nil {
		dup.Employees = make([]Employee, len(a.Employees))
		copy(dup.Employees, a.Employees)
	}
	if a.Milestones != nil {
		dup.Milestones = make([]Milestone, len(a.Milestones))
		copy(dup.Milestones, a.Milestones)
	}
	return &dup
}

// TimeBased reports whether an escrow agreement releases funds on a fixed
// period schedule rather than per milestone.
func (a *Agreement) TimeBased() bool {
	return a.Mode == ModeEscrow && a.PeriodSeconds > 0
}

// IsParty reports whether addr is the employer, the contributor, or a
// payroll employee of the agreement.
func (a *Agreement) IsParty(addr string) bool {
	if addr == "" {
		return false
	}
	if addr == a.Employer || (a.Contributor != "" && addr == a.Contributor) {
		return true
	}
	for i := range a.Employees {
		if a.Employees[i].Address == addr {
			return true
		}
	}
	return false
}

// GracePeriodEnd returns the instant the post-cancellation claim window
// closes, or false when the agreement was never cancelled.
func (a *Agreement) GracePeriodEnd() (time.Time, bool) {
	if a.CancelledAt == nil {
		return time.Time{}, false
	}
	return a.CancelledAt.Add(time.Duration(a.GracePeriodSeconds) * time.Second), true
}
