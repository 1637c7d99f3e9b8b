package agreement

import "time"

// Accrual computes how much has become legitimately claimable at a given
// instant. Period counts use truncating division and never round up; the
// credited count is capped at the schedule length and, after cancellation,
// at the cancellation instant so no periods accrue inside the grace window.

// elapsedPeriods counts full periods between activation and now, capped at
// numPeriods.
func elapsedPeriods(activatedAt, now time.Time, periodSeconds int64, numPeriods int) int {
	if now.Before(activatedAt) || periodSeconds <= 0 {
		return 0
	}
	elapsed := int(now.Unix()-activatedAt.Unix()) / int(periodSeconds)
	if elapsed > numPeriods {
		return numPeriods
	}
	return elapsed
}

// accrualCutoff is the instant accrual stops advancing: the cancellation
// time for a cancelled agreement, otherwise now.
func accrualCutoff(a *Agreement, now time.Time) time.Time {
	if a.CancelledAt != nil && a.CancelledAt.Before(now) {
		return *a.CancelledAt
	}
	return now
}

// accrueTimeBased sizes a claim on an escrow agreement's fixed schedule.
// It returns the number of newly claimable periods and their total amount.
func accrueTimeBased(a *Agreement, now time.Time) (int, int64, error) {
	if a.ActivatedAt == nil {
		return 0, 0, ErrAgreementNotActivated
	}
	if a.ClaimedPeriods >= a.NumPeriods {
		return 0, 0, ErrAllPeriodsClaimed
	}
	elapsed := elapsedPeriods(*a.ActivatedAt, accrualCutoff(a, now), a.PeriodSeconds, a.NumPeriods)
	newly := elapsed - a.ClaimedPeriods
	if newly <= 0 {
		return 0, 0, ErrNoPeriodsToClaim
	}
	return newly, int64(newly) * a.AmountPerPeriod, nil
}

// accruePayroll sizes a claim for the employee at index, using the same
// period arithmetic scoped to that employee's claimed counter.
func accruePayroll(a *Agreement, index int, now time.Time) (int, int64, error) {
	if index < 0 || index >= len(a.Employees) {
		return 0, 0, ErrInvalidEmployeeIndex
	}
	emp := &a.Employees[index]
	if emp.Address == "" {
		return 0, 0, ErrNoEmployee
	}
	if a.ActivatedAt == nil {
		return 0, 0, ErrAgreementNotActivated
	}
	if emp.ClaimedPeriods >= a.NumPeriods {
		return 0, 0, ErrAllPeriodsClaimed
	}
	elapsed := elapsedPeriods(*a.ActivatedAt, accrualCutoff(a, now), a.PeriodSeconds, a.NumPeriods)
	newly := elapsed - emp.ClaimedPeriods
	if newly <= 0 {
		return 0, 0, ErrNoPeriodsToClaim
	}
	return newly, int64(newly) * emp.SalaryPerPeriod, nil
}

// accrueMilestone sizes the claim for a single milestone, identified by its
// 1-based position in the agreement's milestone list.
func accrueMilestone(a *Agreement, milestoneID int) (int64, error) {
	if milestoneID < 1 || milestoneID > len(a.Milestones) {
		return 0, ErrInvalidData
	}
	m := &a.Milestones[milestoneID-1]
	if !m.Completed || m.Claimed {
		return 0, ErrNoPeriodsToClaim
	}
	return m.Amount, nil
}
