package agreement

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Service is the engine entrypoint. Every state-mutating method takes the
// authenticated caller address resolved by the transport layer, loads a
// working copy of the agreement, applies the change, and persists it in a
// single store save so the invocation's visible effect is atomic.
type Service struct {
	store    Store
	transfer Transferor

	// escrowAccount holds locked funds between lock and release.
	escrowAccount string

	now func() time.Time
}

// NewService wires the engine against a store and a transfer capability.
func NewService(store Store, transfer Transferor, escrowAccount string) *Service {
	return &Service{
		store:         store,
		transfer:      transfer,
		escrowAccount: escrowAccount,
		now:           time.Now,
	}
}

// CreatePayrollParams carries employer input for a payroll-mode agreement.
type CreatePayrollParams struct {
	Token              string
	PeriodSeconds      int64
	NumPeriods         int
	GracePeriodSeconds int64
}

// CreateEscrowParams carries employer input for a time-based escrow
// agreement covering a single contributor.
type CreateEscrowParams struct {
	Contributor        string
	Token              string
	AmountPerPeriod    int64
	PeriodSeconds      int64
	NumPeriods         int
	GracePeriodSeconds int64
}

func (s *Service) newEvent(topic string, agreementID int64, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Topic:       topic,
		AgreementID: agreementID,
		Payload:     payload,
		CreatedAt:   s.now(),
	}
}

// CreatePayrollAgreement registers a new payroll agreement in Created
// status. Employees are added separately before activation.
func (s *Service) CreatePayrollAgreement(ctx context.Context, caller string, params CreatePayrollParams) (*Agreement, error) {
	if caller == "" || params.Token == "" {
		return nil, ErrInvalidData
	}
	if params.PeriodSeconds <= 0 {
		return nil, ErrZeroPeriodDuration
	}
	if params.NumPeriods <= 0 {
		return nil, ErrZeroNumPeriods
	}
	if params.GracePeriodSeconds < 0 {
		return nil, ErrInvalidData
	}

	id, err := s.store.NextAgreementID(ctx)
	if err != nil {
		return nil, fmt.Errorf("agreement: allocate id: %w", err)
	}

	a := &Agreement{
		ID:                 id,
		Mode:               ModePayroll,
		Status:             StatusCreated,
		Employer:           caller,
		Token:              params.Token,
		PeriodSeconds:      params.PeriodSeconds,
		NumPeriods:         params.NumPeriods,
		GracePeriodSeconds: params.GracePeriodSeconds,
		CreatedAt:          s.now(),
		DisputeState:       DisputeNone,
	}

	ev := s.newEvent(TopicAgreementCreated, id, map[string]any{"mode": string(ModePayroll), "employer": caller})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return nil, fmt.Errorf("agreement: save: %w", err)
	}
	return a.Clone(), nil
}

// CreateEscrowAgreement registers a time-based escrow agreement and locks
// the full schedule amount in the ledger.
func (s *Service) CreateEscrowAgreement(ctx context.Context, caller string, params CreateEscrowParams) (*Agreement, error) {
	if caller == "" || params.Token == "" || params.Contributor == "" {
		return nil, ErrInvalidData
	}
	if params.AmountPerPeriod <= 0 {
		return nil, ErrZeroAmountPerPeriod
	}
	if params.PeriodSeconds <= 0 {
		return nil, ErrZeroPeriodDuration
	}
	if params.NumPeriods <= 0 {
		return nil, ErrZeroNumPeriods
	}
	if params.GracePeriodSeconds < 0 {
		return nil, ErrInvalidData
	}
	// The full schedule locks up front; reject totals that overflow int64.
	if params.AmountPerPeriod > math.MaxInt64/int64(params.NumPeriods) {
		return nil, ErrInvalidData
	}

	id, err := s.store.NextAgreementID(ctx)
	if err != nil {
		return nil, fmt.Errorf("agreement: allocate id: %w", err)
	}

	a := &Agreement{
		ID:                 id,
		Mode:               ModeEscrow,
		Status:             StatusCreated,
		Employer:           caller,
		Contributor:        params.Contributor,
		Token:              params.Token,
		PeriodSeconds:      params.PeriodSeconds,
		NumPeriods:         params.NumPeriods,
		AmountPerPeriod:    params.AmountPerPeriod,
		GracePeriodSeconds: params.GracePeriodSeconds,
		CreatedAt:          s.now(),
		DisputeState:       DisputeNone,
	}

	total := params.AmountPerPeriod * int64(params.NumPeriods)
	if err := lockFunds(a, total); err != nil {
		return nil, err
	}
	if err := s.transfer.Transfer(ctx, a.Token, caller, s.escrowAccount, total); err != nil {
		return nil, ErrTransferFailed
	}

	ev := s.newEvent(TopicAgreementCreated, id, map[string]any{
		"mode": string(ModeEscrow), "employer": caller, "locked": total,
	})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return nil, fmt.Errorf("agreement: save: %w", err)
	}
	return a.Clone(), nil
}

// CreateMilestoneAgreement registers a milestone-shaped escrow agreement.
// Milestones are added (and funded) one at a time afterwards.
func (s *Service) CreateMilestoneAgreement(ctx context.Context, caller, contributor, token string, gracePeriodSeconds int64) (*Agreement, error) {
	if caller == "" || contributor == "" || token == "" || gracePeriodSeconds < 0 {
		return nil, ErrInvalidData
	}

	id, err := s.store.NextAgreementID(ctx)
	if err != nil {
		return nil, fmt.Errorf("agreement: allocate id: %w", err)
	}

	a := &Agreement{
		ID:                 id,
		Mode:               ModeEscrow,
		Status:             StatusCreated,
		Employer:           caller,
		Contributor:        contributor,
		Token:              token,
		GracePeriodSeconds: gracePeriodSeconds,
		CreatedAt:          s.now(),
		DisputeState:       DisputeNone,
	}

	ev := s.newEvent(TopicAgreementCreated, id, map[string]any{"mode": string(ModeEscrow), "employer": caller})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return nil, fmt.Errorf("agreement: save: %w", err)
	}
	return a.Clone(), nil
}

// AddEmployee appends an employee slot to a payroll agreement that has not
// been activated yet.
func (s *Service) AddEmployee(ctx context.Context, caller string, agreementID int64, address string, salaryPerPeriod int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	if a.Mode != ModePayroll {
		return ErrInvalidAgreementMode
	}
	if a.Status != StatusCreated {
		return ErrInvalidData
	}
	if address == "" {
		return ErrNoEmployee
	}
	if salaryPerPeriod <= 0 {
		return ErrZeroAmountPerPeriod
	}
	for i := range a.Employees {
		if a.Employees[i].Address == address {
			return ErrInvalidData
		}
	}

	a.Employees = append(a.Employees, Employee{Address: address, SalaryPerPeriod: salaryPerPeriod})
	if err := s.store.SaveAgreement(ctx, a, nil, nil); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// AddMilestone appends a milestone to a milestone-shaped escrow agreement
// and locks its payout amount in escrow.
func (s *Service) AddMilestone(ctx context.Context, caller string, agreementID int64, amount int64) (int, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	if caller != a.Employer {
		return 0, ErrUnauthorized
	}
	if a.Mode != ModeEscrow || a.TimeBased() {
		return 0, ErrInvalidAgreementMode
	}
	switch a.Status {
	case StatusCreated, StatusActive:
	default:
		return 0, ErrInvalidData
	}
	if amount <= 0 {
		return 0, ErrZeroAmountPerPeriod
	}

	if err := lockFunds(a, amount); err != nil {
		return 0, err
	}
	if err := s.transfer.Transfer(ctx, a.Token, a.Employer, s.escrowAccount, amount); err != nil {
		return 0, ErrTransferFailed
	}
	a.Milestones = append(a.Milestones, Milestone{Amount: amount})

	ev := s.newEvent(TopicFundsLocked, a.ID, map[string]any{"amount": amount})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return 0, fmt.Errorf("agreement: save: %w", err)
	}
	return len(a.Milestones), nil
}

// FundAgreement locks additional funds into the agreement's escrow,
// transferring them from the employer. Payroll agreements are funded this
// way before claims can settle.
func (s *Service) FundAgreement(ctx context.Context, caller string, agreementID int64, amount int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	if err := lockFunds(a, amount); err != nil {
		return err
	}
	if err := s.transfer.Transfer(ctx, a.Token, a.Employer, s.escrowAccount, amount); err != nil {
		return ErrTransferFailed
	}

	ev := s.newEvent(TopicFundsLocked, a.ID, map[string]any{"amount": amount})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// ActivateAgreement moves a Created agreement to Active and stamps the
// activation time the accrual schedule runs from. Payroll agreements need at
// least one employee on the roster.
func (s *Service) ActivateAgreement(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	switch a.Status {
	case StatusCreated:
	case StatusDisputed:
		return ErrActiveDispute
	default:
		return ErrInvalidData
	}
	if a.Mode == ModePayroll && len(a.Employees) == 0 {
		return ErrNoEmployee
	}

	now := s.now()
	a.Status = StatusActive
	a.ActivatedAt = &now

	ev := s.newEvent(TopicAgreementActivated, a.ID, nil)
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// PauseAgreement moves an Active agreement to Paused. Claims are blocked
// until the employer resumes.
func (s *Service) PauseAgreement(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	switch a.Status {
	case StatusActive:
	case StatusCreated:
		return ErrAgreementNotActivated
	case StatusDisputed:
		return ErrActiveDispute
	default:
		return ErrInvalidData
	}

	a.Status = StatusPaused
	ev := s.newEvent(TopicAgreementPaused, a.ID, nil)
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// ResumeAgreement moves a Paused agreement back to Active.
func (s *Service) ResumeAgreement(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	switch a.Status {
	case StatusPaused:
	case StatusCreated:
		return ErrAgreementNotActivated
	case StatusDisputed:
		return ErrActiveDispute
	default:
		return ErrInvalidData
	}

	a.Status = StatusActive
	ev := s.newEvent(TopicAgreementResumed, a.ID, nil)
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// CancelAgreement cancels a Created or Active agreement and opens the grace
// window during which earned claims may still settle.
func (s *Service) CancelAgreement(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	switch a.Status {
	case StatusCreated, StatusActive:
	case StatusDisputed:
		return ErrActiveDispute
	default:
		return ErrInvalidData
	}

	now := s.now()
	a.Status = StatusCancelled
	a.CancelledAt = &now

	end, _ := a.GracePeriodEnd()
	ev := s.newEvent(TopicAgreementCancelled, a.ID, map[string]any{"grace_period_end": end.Unix()})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// FinalizeGracePeriod closes a cancelled agreement once its grace window has
// elapsed, refunding whatever escrow remains to the employer.
func (s *Service) FinalizeGracePeriod(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	if a.Status != StatusCancelled {
		return ErrInvalidData
	}
	end, ok := a.GracePeriodEnd()
	if !ok || s.now().Before(end) {
		return ErrNotInGracePeriod
	}

	remaining := remainingLocked(a)
	if remaining > 0 {
		if err := commitRefund(a, remaining); err != nil {
			return err
		}
		if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, a.Employer, remaining); err != nil {
			return ErrTransferFailed
		}
	}
	a.Status = StatusCompleted

	ev := s.newEvent(TopicAgreementCompleted, a.ID, map[string]any{"refunded": remaining})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// SetArbiter configures the address allowed to resolve disputes. It cannot
// change while a dispute is in flight.
func (s *Service) SetArbiter(ctx context.Context, caller string, agreementID int64, arbiter string) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	if arbiter == "" {
		return ErrInvalidData
	}
	if a.DisputeState == DisputeRaised {
		return ErrActiveDispute
	}

	a.Arbiter = arbiter
	if err := s.store.SaveAgreement(ctx, a, nil, nil); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// claimGate rejects claims the agreement's current status forbids. Cancelled
// agreements accept claims only inside the grace window.
func (s *Service) claimGate(a *Agreement, now time.Time) error {
	switch a.Status {
	case StatusActive:
		return nil
	case StatusCreated:
		// Milestone-shaped agreements are claimable pre-activation; the
		// employer's approval is the release gate.
		if a.Mode == ModeEscrow && !a.TimeBased() {
			return nil
		}
		return ErrAgreementNotActivated
	case StatusPaused:
		return ErrAgreementPaused
	case StatusDisputed:
		return ErrActiveDispute
	case StatusCancelled:
		end, _ := a.GracePeriodEnd()
		if now.Before(end) {
			return nil
		}
		return ErrNotInGracePeriod
	default:
		return ErrInvalidData
	}
}

// GetAgreement returns a snapshot of the agreement graph.
func (s *Service) GetAgreement(ctx context.Context, agreementID int64) (*Agreement, error) {
	return s.store.GetAgreement(ctx, agreementID)
}

// EmployeeClaimState reports an employee's accrual position at the current
// clock: periods claimed so far and the amount that would settle now.
type EmployeeClaimState struct {
	Address          string
	SalaryPerPeriod  int64
	ClaimedPeriods   int
	ClaimablePeriods int
	ClaimableAmount  int64
}

// GetEmployeeClaimState resolves the claim position for one payroll slot.
func (s *Service) GetEmployeeClaimState(ctx context.Context, agreementID int64, index int) (EmployeeClaimState, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return EmployeeClaimState{}, err
	}
	if a.Mode != ModePayroll {
		return EmployeeClaimState{}, ErrInvalidAgreementMode
	}
	if index < 0 || index >= len(a.Employees) {
		return EmployeeClaimState{}, ErrInvalidEmployeeIndex
	}

	emp := a.Employees[index]
	state := EmployeeClaimState{
		Address:         emp.Address,
		SalaryPerPeriod: emp.SalaryPerPeriod,
		ClaimedPeriods:  emp.ClaimedPeriods,
	}
	if periods, amount, err := accruePayroll(a, index, s.now()); err == nil {
		state.ClaimablePeriods = periods
		state.ClaimableAmount = amount
	}
	return state, nil
}

// GetAgreementEmployees returns the payroll roster.
func (s *Service) GetAgreementEmployees(ctx context.Context, agreementID int64) ([]Employee, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if a.Mode != ModePayroll {
		return nil, ErrInvalidAgreementMode
	}
	return a.Employees, nil
}

// GetClaimedPeriods returns the claimed-period counter of a time-based
// escrow agreement.
func (s *Service) GetClaimedPeriods(ctx context.Context, agreementID int64) (int, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	if !a.TimeBased() {
		return 0, ErrInvalidAgreementMode
	}
	return a.ClaimedPeriods, nil
}

// GetMilestone returns milestone state by 1-based position.
func (s *Service) GetMilestone(ctx context.Context, agreementID int64, milestoneID int) (Milestone, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return Milestone{}, err
	}
	if milestoneID < 1 || milestoneID > len(a.Milestones) {
		return Milestone{}, ErrInvalidData
	}
	return a.Milestones[milestoneID-1], nil
}

// GetGracePeriodEnd returns when a cancelled agreement's claim window closes.
// The second return is false when the agreement was never cancelled.
func (s *Service) GetGracePeriodEnd(ctx context.Context, agreementID int64) (time.Time, bool, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return time.Time{}, false, err
	}
	end, ok := a.GracePeriodEnd()
	return end, ok, nil
}

// IsGracePeriodActive reports whether a cancelled agreement is still inside
// its claim window.
func (s *Service) IsGracePeriodActive(ctx context.Context, agreementID int64) (bool, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return false, err
	}
	end, ok := a.GracePeriodEnd()
	if !ok {
		return false, nil
	}
	return a.Status == StatusCancelled && s.now().Before(end), nil
}
