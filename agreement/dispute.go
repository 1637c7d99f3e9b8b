package agreement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"payflow/token"
)

// Dispute arbitration. A single dispute may be in flight per agreement;
// while it is open every normal claim path is blocked, and resolution is
// the only way funds move. The arbiter decides the split.

// RaiseDispute opens a dispute on a Created or Active agreement. Any party
// to the agreement may raise one.
func (s *Service) RaiseDispute(ctx context.Context, caller string, agreementID int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if !a.IsParty(caller) {
		return ErrNotParty
	}
	if a.DisputeState == DisputeRaised {
		return ErrDisputeAlreadyRaised
	}
	switch a.Status {
	case StatusCreated, StatusActive:
	case StatusDisputed:
		return ErrDisputeAlreadyRaised
	default:
		return ErrInvalidData
	}

	now := s.now()
	d := &Dispute{
		ID:          uuid.NewString(),
		AgreementID: a.ID,
		RaisedBy:    caller,
		State:       DisputeRaised,
		RaisedAt:    now,
	}
	a.Status = StatusDisputed
	a.DisputeState = DisputeRaised
	a.DisputeRaisedAt = &now

	ev := s.newEvent(TopicDisputeRaised, a.ID, map[string]any{"raised_by": caller})
	if err := s.store.SaveAgreement(ctx, a, d, []Event{ev}); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// ResolveDispute settles an open dispute with an arbiter-decided split:
// payCounterpart goes to the agreement's counterparty, refundEmployer back
// to the employer. The split must fit in the remaining locked balance. The
// agreement closes as Completed.
func (s *Service) ResolveDispute(ctx context.Context, caller string, agreementID int64, payCounterpart, refundEmployer int64) error {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if a.Arbiter == "" || caller != a.Arbiter {
		return ErrNotArbiter
	}
	if a.DisputeState != DisputeRaised {
		return ErrNoDispute
	}
	if payCounterpart < 0 || refundEmployer < 0 {
		return ErrInvalidData
	}
	if payCounterpart+refundEmployer > remainingLocked(a) {
		return ErrInvalidPayout
	}

	d, err := s.store.GetDispute(ctx, agreementID)
	if err != nil {
		return err
	}

	counterpart := disputeCounterpart(a, d)
	if payCounterpart > 0 && counterpart == "" {
		return ErrInvalidData
	}

	if payCounterpart > 0 {
		if err := commitClaim(a, payCounterpart); err != nil {
			return err
		}
	}
	if refundEmployer > 0 {
		if err := commitRefund(a, refundEmployer); err != nil {
			return err
		}
	}

	// Both legs settle in one capability call; on failure no funds move
	// and the dispute stays open.
	legs := make([]token.Leg, 0, 2)
	if payCounterpart > 0 {
		legs = append(legs, token.Leg{To: counterpart, Amount: payCounterpart})
	}
	if refundEmployer > 0 {
		legs = append(legs, token.Leg{To: a.Employer, Amount: refundEmployer})
	}
	if len(legs) > 0 {
		if err := s.transfer.TransferSplit(ctx, a.Token, s.escrowAccount, legs); err != nil {
			return ErrTransferFailed
		}
	}

	now := s.now()
	d.State = DisputeResolved
	d.ResolvedAt = &now
	d.PayCounterpart = payCounterpart
	d.RefundEmployer = refundEmployer
	a.DisputeState = DisputeResolved
	a.Status = StatusCompleted

	events := []Event{
		s.newEvent(TopicDisputeResolved, a.ID, map[string]any{
			"pay_counterpart": payCounterpart, "refund_employer": refundEmployer,
		}),
		s.newEvent(TopicAgreementCompleted, a.ID, nil),
	}
	if err := s.store.SaveAgreement(ctx, a, d, events); err != nil {
		return fmt.Errorf("agreement: save: %w", err)
	}
	return nil
}

// disputeCounterpart resolves who receives the pay side of a split: the
// contributor for escrow agreements, the raising employee for payroll ones.
// A payroll dispute raised by the employer has no single counterparty, so
// the split can only refund.
func disputeCounterpart(a *Agreement, d *Dispute) string {
	if a.Mode == ModeEscrow {
		return a.Contributor
	}
	if d.RaisedBy != a.Employer {
		return d.RaisedBy
	}
	return ""
}

// GetDisputeStatus returns the agreement's dispute flag.
func (s *Service) GetDisputeStatus(ctx context.Context, agreementID int64) (DisputeState, error) {
	a, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return DisputeNone, err
	}
	return a.DisputeState, nil
}
