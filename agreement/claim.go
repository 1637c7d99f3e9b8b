package agreement

import (
	"context"
	"fmt"
)

// BatchItemResult records the outcome of one batch target. Code 0 means the
// claim settled.
type BatchItemResult struct {
	Target int
	Code   Code
}

// BatchResult aggregates a batch claim. The envelope always succeeds once
// per-item processing starts; dashboards use the per-item codes to separate
// systemic failure from isolated bad inputs.
type BatchResult struct {
	Items            []BatchItemResult
	SuccessfulClaims int
	FailedClaims     int
	TotalClaimed     int64
}

func (r *BatchResult) record(target int, code Code, amount int64) {
	r.Items = append(r.Items, BatchItemResult{Target: target, Code: code})
	if code == CodeSuccess {
		r.SuccessfulClaims++
		r.TotalClaimed += amount
	} else {
		r.FailedClaims++
	}
}

// ClaimPayroll settles the accrued salary for one employee slot. The caller
// must be the employee occupying the slot.
func (s *Service) ClaimPayroll(ctx context.Context, caller string, agreementID int64, index int) (int64, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	if a.Mode != ModePayroll {
		return 0, ErrInvalidAgreementMode
	}
	if index < 0 || index >= len(a.Employees) {
		return 0, ErrInvalidEmployeeIndex
	}
	if caller != a.Employees[index].Address {
		return 0, ErrNotParty
	}
	now := s.now()
	if err := s.claimGate(a, now); err != nil {
		return 0, err
	}

	periods, amount, err := accruePayroll(a, index, now)
	if err != nil {
		return 0, err
	}
	if err := commitClaim(a, amount); err != nil {
		return 0, err
	}
	a.Employees[index].ClaimedPeriods += periods

	if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, caller, amount); err != nil {
		// The working copy is discarded with the failed transfer; no
		// ledger mutation survives this invocation.
		return 0, ErrTransferFailed
	}

	ev := s.newEvent(TopicClaimSettled, a.ID, map[string]any{
		"employee": caller, "periods": periods, "amount": amount,
	})
	if err := s.store.SaveAgreement(ctx, a, nil, []Event{ev}); err != nil {
		return 0, fmt.Errorf("agreement: save: %w", err)
	}
	return amount, nil
}

// ClaimTimeBased settles accrued periods on a time-based escrow agreement.
// The caller must be the contributor. When the schedule exhausts while the
// agreement is Active it auto-completes.
func (s *Service) ClaimTimeBased(ctx context.Context, caller string, agreementID int64) (int64, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	if !a.TimeBased() {
		return 0, ErrInvalidAgreementMode
	}
	if caller != a.Contributor {
		return 0, ErrNotParty
	}
	now := s.now()
	if err := s.claimGate(a, now); err != nil {
		return 0, err
	}

	periods, amount, err := accrueTimeBased(a, now)
	if err != nil {
		return 0, err
	}
	if err := commitClaim(a, amount); err != nil {
		return 0, err
	}
	a.ClaimedPeriods += periods

	if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, caller, amount); err != nil {
		return 0, ErrTransferFailed
	}

	events := []Event{s.newEvent(TopicClaimSettled, a.ID, map[string]any{
		"contributor": caller, "periods": periods, "amount": amount,
	})}
	if a.Status == StatusActive && a.ClaimedPeriods == a.NumPeriods {
		a.Status = StatusCompleted
		events = append(events, s.newEvent(TopicAgreementCompleted, a.ID, nil))
	}

	if err := s.store.SaveAgreement(ctx, a, nil, events); err != nil {
		return 0, fmt.Errorf("agreement: save: %w", err)
	}
	return amount, nil
}

// ApproveMilestone marks a milestone completed, releasing it for claiming.
// Only the employer approves.
func (s *Service) ApproveMilestone(ctx context.Context, caller string, agreementID int64, milestoneID int) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if caller != a.Employer {
		return ErrUnauthorized
	}
	if a.Mode != ModeEscrow || a.TimeBased() {
		return ErrInvalidAgreementMode
	}
	switch a.Status {
	case StatusCreated, StatusActive:
	case StatusDisputed:
		return ErrActiveDispute
	default:
		return ErrInvalidData
	}
	if milestoneID < 1 || milestoneID > len(a.Milestones) {
		return ErrInvalidData
	}
	m := &a.Milestones[milestoneID-1]
	if m.Claimed {
		return ErrInvalidData
	}

	m.Completed = true
	if err := s.store.SaveAgreement(ctx, a, nil, nil); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// ClaimMilestone settles a single approved milestone for the contributor.
// The agreement auto-completes when the final milestone is claimed.
func (s *Service) ClaimMilestone(ctx context.Context, caller string, agreementID int64, milestoneID int) (int64, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return 0, err
	}
	if a.Mode != ModeEscrow || a.TimeBased() {
		return 0, ErrInvalidAgreementMode
	}
	if caller != a.Contributor {
		return 0, ErrNotParty
	}
	now := s.now()
	if err := s.claimGate(a, now); err != nil {
		return 0, err
	}

	amount, err := accrueMilestone(a, milestoneID)
	if err != nil {
		return 0, err
	}
	if err := commitClaim(a, amount); err != nil {
		return 0, err
	}
	a.Milestones[milestoneID-1].Claimed = true

	if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, caller, amount); err != nil {
		return 0, ErrTransferFailed
	}

	events := []Event{s.newEvent(TopicClaimSettled, a.ID, map[string]any{
		"contributor": caller, "milestone": milestoneID, "amount": amount,
	})}
	if milestonesExhausted(a) {
		a.Status = StatusCompleted
		events = append(events, s.newEvent(TopicAgreementCompleted, a.ID, nil))
	}

	if err := s.store.SaveAgreement(ctx, a, nil, events); err != nil {
		return 0, fmt.Errorf("agreement: save: %w", err)
	}
	return amount, nil
}

// milestonesExhausted reports whether every milestone has been claimed on an
// agreement still eligible to auto-complete.
func milestonesExhausted(a *Agreement) bool {
	if a.Status != StatusCreated && a.Status != StatusActive {
		return false
	}
	if len(a.Milestones) == 0 {
		return false
	}
	for i := range a.Milestones {
		if !a.Milestones[i].Claimed {
			return false
		}
	}
	return true
}

// BatchClaimPayroll settles many employee claims in one invocation. The
// employer triggers settlement; envelope-level failures (auth, lookup, mode,
// status) abort the batch, while per-item failures are recorded without
// aborting. A failed item's ledger mutations are discarded; earlier items'
// committed effects are never undone by a later failure.
func (s *Service) BatchClaimPayroll(ctx context.Context, caller string, agreementID int64, indices []int) (BatchResult, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return BatchResult{}, err
	}
	if caller != a.Employer {
		return BatchResult{}, ErrUnauthorized
	}
	if a.Mode != ModePayroll {
		return BatchResult{}, ErrInvalidAgreementMode
	}
	now := s.now()
	if err := s.claimGate(a, now); err != nil {
		return BatchResult{}, err
	}

	var (
		result BatchResult
		events []Event
	)
	for _, index := range indices {
		snap := a.Clone()

		periods, amount, err := accruePayroll(a, index, now)
		if err != nil {
			result.record(index, CodeOf(err), 0)
			continue
		}
		if err := commitClaim(a, amount); err != nil {
			result.record(index, CodeOf(err), 0)
			continue
		}
		a.Employees[index].ClaimedPeriods += periods

		if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, a.Employees[index].Address, amount); err != nil {
			a = snap
			result.record(index, CodeTransferFailed, 0)
			continue
		}

		events = append(events, s.newEvent(TopicClaimSettled, a.ID, map[string]any{
			"employee": snap.Employees[index].Address, "periods": periods, "amount": amount,
		}))
		result.record(index, CodeSuccess, amount)
	}

	if result.SuccessfulClaims > 0 {
		if err := s.store.SaveAgreement(ctx, a, nil, events); err != nil {
			return BatchResult{}, fmt.Errorf("agreement: save: %w", err)
		}
	}
	return result, nil
}

// BatchClaimMilestone settles many milestone claims for the contributor in
// one invocation, with the same per-item error boundary as the payroll
// batch. Duplicate IDs within one batch fail on their second occurrence.
func (s *Service) BatchClaimMilestone(ctx context.Context, caller string, agreementID int64, milestoneIDs []int) (BatchResult, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return BatchResult{}, err
	}
	if a.Mode != ModeEscrow || a.TimeBased() {
		return BatchResult{}, ErrInvalidAgreementMode
	}
	if caller != a.Contributor {
		return BatchResult{}, ErrNotParty
	}
	now := s.now()
	if err := s.claimGate(a, now); err != nil {
		return BatchResult{}, err
	}

	var (
		result BatchResult
		events []Event
	)
	for _, id := range milestoneIDs {
		snap := a.Clone()

		amount, err := accrueMilestone(a, id)
		if err != nil {
			result.record(id, CodeOf(err), 0)
			continue
		}
		if err := commitClaim(a, amount); err != nil {
			result.record(id, CodeOf(err), 0)
			continue
		}
		a.Milestones[id-1].Claimed = true

		if err := s.transfer.Transfer(ctx, a.Token, s.escrowAccount, a.Contributor, amount); err != nil {
			a = snap
			result.record(id, CodeTransferFailed, 0)
			continue
		}

		events = append(events, s.newEvent(TopicClaimSettled, a.ID, map[string]any{
			"contributor": a.Contributor, "milestone": id, "amount": amount,
		}))
		result.record(id, CodeSuccess, amount)
	}

	if milestonesExhausted(a) {
		a.Status = StatusCompleted
		events = append(events, s.newEvent(TopicAgreementCompleted, a.ID, nil))
	}

	if result.SuccessfulClaims > 0 {
		if err := s.store.SaveAgreement(ctx, a, nil, events); err != nil {
			return BatchResult{}, fmt.Errorf("agreement: save: %w", err)
		}
	}
	return result, nil
}
