package agreement

import "fmt"

// Escrow ledger arithmetic. These helpers are the only code that mutates the
// three balance fields, and every mutation re-checks fund conservation:
// claimed + refunded never exceeds total locked. A stored record that already
// violates the invariant is a defect, not a caller mistake, and panics.

// remainingLocked is the balance still held in escrow for the agreement.
func remainingLocked(a *Agreement) int64 {
	return a.TotalLocked - a.ClaimedAmount - a.RefundedAmount
}

// assertConserved aborts the invocation on a corrupted ledger record.
func assertConserved(a *Agreement) {
	if a.TotalLocked < 0 || a.ClaimedAmount < 0 || a.RefundedAmount < 0 ||
		a.ClaimedAmount+a.RefundedAmount > a.TotalLocked {
		panic(fmt.Sprintf("agreement %d: ledger corrupt: locked=%d claimed=%d refunded=%d",
			a.ID, a.TotalLocked, a.ClaimedAmount, a.RefundedAmount))
	}
}

// lockFunds increases the locked total. Locking is only permitted before the
// agreement reaches a terminal state; the total never decreases.
func lockFunds(a *Agreement, amount int64) error {
	if amount <= 0 {
		return ErrInvalidData
	}
	switch a.Status {
	case StatusCompleted, StatusCancelled:
		return ErrInvalidData
	}
	a.TotalLocked += amount
	assertConserved(a)
	return nil
}

// commitClaim moves amount from locked to claimed.
func commitClaim(a *Agreement, amount int64) error {
	if amount <= 0 {
		return ErrInvalidData
	}
	if a.ClaimedAmount+a.RefundedAmount+amount > a.TotalLocked {
		return ErrInsufficientEscrowBalance
	}
	a.ClaimedAmount += amount
	assertConserved(a)
	return nil
}

// commitRefund moves amount from locked to refunded.
func commitRefund(a *Agreement, amount int64) error {
	if amount <= 0 {
		return ErrInvalidData
	}
	if a.ClaimedAmount+a.RefundedAmount+amount > a.TotalLocked {
		return ErrInvalidPayout
	}
	a.RefundedAmount += amount
	assertConserved(a)
	return nil
}
