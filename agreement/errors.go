package agreement

import (
	"errors"
	"fmt"
)

// Code is the stable numeric discriminant surfaced in batch results and
// consumed by off-platform dashboards. Values are frozen; new codes may be
// appended but existing ones never change meaning.
type Code int32

const (
	CodeSuccess Code = 0

	// Authorization.
	CodeUnauthorized Code = 1
	CodeNotParty     Code = 2
	CodeNotArbiter   Code = 3

	// Lifecycle / mode.
	CodeAgreementNotActivated Code = 10
	CodeAgreementPaused       Code = 11
	CodeInvalidAgreementMode  Code = 12
	CodeActiveDispute         Code = 13
	CodeNotInGracePeriod      Code = 14

	// Disputes.
	CodeDisputeAlreadyRaised Code = 20
	CodeNoDispute            Code = 21
	CodeInvalidPayout        Code = 22

	// Input validation.
	CodeInvalidEmployeeIndex Code = 30
	CodeZeroAmountPerPeriod  Code = 31
	CodeZeroPeriodDuration   Code = 32
	CodeZeroNumPeriods       Code = 33
	CodeInvalidData          Code = 34
	CodeNoEmployee           Code = 35

	// Funds.
	CodeInsufficientEscrowBalance Code = 40
	CodeTransferFailed            Code = 41
	CodeAgreementNotFound         Code = 42

	// Accrual exhaustion.
	CodeNoPeriodsToClaim  Code = 50
	CodeAllPeriodsClaimed Code = 51
)

// Error is the typed, recoverable failure class. Direct calls propagate it
// as the invocation's sole failure signal; batch calls capture it per item.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("agreement: %s (code %d)", e.Msg, e.Code)
}

// Is matches on code so callers can branch with errors.Is against the
// package sentinels regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorized = &Error{CodeUnauthorized, "caller not authorized"}
	ErrNotParty     = &Error{CodeNotParty, "caller is not a party to the agreement"}
	ErrNotArbiter   = &Error{CodeNotArbiter, "caller is not the configured arbiter"}

	ErrAgreementNotActivated = &Error{CodeAgreementNotActivated, "agreement not activated"}
	ErrAgreementPaused       = &Error{CodeAgreementPaused, "agreement is paused"}
	ErrInvalidAgreementMode  = &Error{CodeInvalidAgreementMode, "operation not valid for agreement mode"}
	ErrActiveDispute         = &Error{CodeActiveDispute, "agreement has an active dispute"}
	ErrNotInGracePeriod      = &Error{CodeNotInGracePeriod, "outside the cancellation grace period"}

	ErrDisputeAlreadyRaised = &Error{CodeDisputeAlreadyRaised, "dispute already raised"}
	ErrNoDispute            = &Error{CodeNoDispute, "no dispute raised"}
	ErrInvalidPayout        = &Error{CodeInvalidPayout, "payout exceeds remaining locked balance"}

	ErrInvalidEmployeeIndex = &Error{CodeInvalidEmployeeIndex, "employee index out of range"}
	ErrZeroAmountPerPeriod  = &Error{CodeZeroAmountPerPeriod, "amount per period must be positive"}
	ErrZeroPeriodDuration   = &Error{CodeZeroPeriodDuration, "period duration must be positive"}
	ErrZeroNumPeriods       = &Error{CodeZeroNumPeriods, "number of periods must be positive"}
	ErrInvalidData          = &Error{CodeInvalidData, "invalid request for current agreement state"}
	ErrNoEmployee           = &Error{CodeNoEmployee, "no employee at the requested slot"}

	ErrInsufficientEscrowBalance = &Error{CodeInsufficientEscrowBalance, "insufficient escrow balance"}
	ErrTransferFailed            = &Error{CodeTransferFailed, "token transfer failed"}
	ErrAgreementNotFound         = &Error{CodeAgreementNotFound, "agreement not found"}

	ErrNoPeriodsToClaim  = &Error{CodeNoPeriodsToClaim, "no newly claimable periods"}
	ErrAllPeriodsClaimed = &Error{CodeAllPeriodsClaimed, "all periods already claimed"}
)

// CodeOf extracts the stable code from err. Untyped errors map to
// CodeTransferFailed only at the call site that invoked the transfer
// capability; everywhere else they are invocation-level failures and never
// reach a batch item record, so this returns CodeInvalidData as a guard.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInvalidData
}
