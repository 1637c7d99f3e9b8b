package agreement

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestCreatePayrollAgreement_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token: tokenUSD, PeriodSeconds: 0, NumPeriods: 4,
	}); !errors.Is(err, ErrZeroPeriodDuration) {
		t.Fatalf("expected ErrZeroPeriodDuration, got %v", err)
	}
	if _, err := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token: tokenUSD, PeriodSeconds: 86400, NumPeriods: 0,
	}); !errors.Is(err, ErrZeroNumPeriods) {
		t.Fatalf("expected ErrZeroNumPeriods, got %v", err)
	}
}

func TestCreateEscrowAgreement_LocksFullSchedule(t *testing.T) {
	svc, _, _, transfer := newTestService()
	ctx := context.Background()

	a, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor:        contributor,
		Token:              tokenUSD,
		AmountPerPeriod:    1000,
		PeriodSeconds:      86400,
		NumPeriods:         4,
		GracePeriodSeconds: 604800,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.TotalLocked != 4000 {
		t.Fatalf("expected 4000 locked, got %d", a.TotalLocked)
	}
	if got := transfer.balanceOf(escrowAcct); got != 4000 {
		t.Fatalf("expected 4000 in escrow account, got %d", got)
	}
	if _, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor: contributor, Token: tokenUSD,
		AmountPerPeriod: 0, PeriodSeconds: 86400, NumPeriods: 4,
	}); !errors.Is(err, ErrZeroAmountPerPeriod) {
		t.Fatalf("expected ErrZeroAmountPerPeriod, got %v", err)
	}
}

func TestAgreementIDsStrictlyIncrease(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		a, err := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
			Token: tokenUSD, PeriodSeconds: 86400, NumPeriods: 4,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if a.ID <= last {
			t.Fatalf("ids not strictly increasing: %d after %d", a.ID, last)
		}
		last = a.ID
	}
}

func TestActivate_RequiresEmployerAndRoster(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token: tokenUSD, PeriodSeconds: 86400, NumPeriods: 4,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.ActivateAgreement(ctx, "addr-stranger", a.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrNoEmployee) {
		t.Fatalf("expected ErrNoEmployee for empty roster, got %v", err)
	}

	if err := svc.AddEmployee(ctx, employerA, a.ID, employeeAddr(0), 100); err != nil {
		t.Fatalf("add employee: %v", err)
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Second activation hits a non-Created source state.
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData on double activate, got %v", err)
	}

	got, err := svc.GetAgreement(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusActive || got.ActivatedAt == nil {
		t.Fatalf("expected active with activation time, got %+v", got)
	}
}

func TestAddEmployee_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token: tokenUSD, PeriodSeconds: 86400, NumPeriods: 4,
	})

	if err := svc.AddEmployee(ctx, employerA, a.ID, employeeAddr(0), 0); !errors.Is(err, ErrZeroAmountPerPeriod) {
		t.Fatalf("expected ErrZeroAmountPerPeriod, got %v", err)
	}
	if err := svc.AddEmployee(ctx, employerA, a.ID, "", 100); !errors.Is(err, ErrNoEmployee) {
		t.Fatalf("expected ErrNoEmployee for empty address, got %v", err)
	}
	if err := svc.AddEmployee(ctx, employerA, a.ID, employeeAddr(0), 100); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.AddEmployee(ctx, employerA, a.ID, employeeAddr(0), 100); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData on duplicate address, got %v", err)
	}

	esc, _ := svc.CreateMilestoneAgreement(ctx, employerA, contributor, tokenUSD, 0)
	if err := svc.AddEmployee(ctx, employerA, esc.ID, employeeAddr(1), 100); !errors.Is(err, ErrInvalidAgreementMode) {
		t.Fatalf("expected ErrInvalidAgreementMode, got %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	id := mustCreateFundedEscrow(ctx, svc, 1000, 86400, 4, 604800)

	if err := svc.PauseAgreement(ctx, contributor, id); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.ResumeAgreement(ctx, employerA, id); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("resume of active agreement: expected ErrInvalidData, got %v", err)
	}
	if err := svc.PauseAgreement(ctx, employerA, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := svc.PauseAgreement(ctx, employerA, id); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("double pause: expected ErrInvalidData, got %v", err)
	}
	if err := svc.ResumeAgreement(ctx, employerA, id); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := svc.GetAgreement(ctx, id)
	if got.Status != StatusActive {
		t.Fatalf("expected active after resume, got %s", got.Status)
	}
}

// Scenario: cancel an active agreement with a one-week grace period, then
// finalize. Early finalization is rejected; late finalization refunds the
// unclaimed remainder to the employer and completes the agreement.
func TestCancelAndFinalizeGracePeriod(t *testing.T) {
	svc, _, clock, transfer := newTestService()
	ctx := context.Background()
	id := mustCreateFundedEscrow(ctx, svc, 1000, 86400, 4, 604800)

	clock.Advance(2 * 86400 * time.Second)
	if _, err := svc.ClaimTimeBased(ctx, contributor, id); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := svc.CancelAgreement(ctx, employerA, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	active, err := svc.IsGracePeriodActive(ctx, id)
	if err != nil || !active {
		t.Fatalf("expected grace period active, got %v err=%v", active, err)
	}

	if err := svc.FinalizeGracePeriod(ctx, employerA, id); !errors.Is(err, ErrNotInGracePeriod) {
		t.Fatalf("early finalize: expected ErrNotInGracePeriod, got %v", err)
	}

	clock.Advance(604800 * time.Second)
	if err := svc.FinalizeGracePeriod(ctx, employerA, id); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, _ := svc.GetAgreement(ctx, id)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.RefundedAmount != 2000 {
		t.Fatalf("expected 2000 refunded, got %d", got.RefundedAmount)
	}
	if got.ClaimedAmount+got.RefundedAmount != got.TotalLocked {
		t.Fatalf("ledger not settled: %+v", got)
	}
	// Escrow vault funded 4000, paid 2000 in claims and 2000 back.
	if bal := transfer.balanceOf(escrowAcct); bal != 0 {
		t.Fatalf("expected empty escrow vault, got %d", bal)
	}
	if bal := transfer.balanceOf(employerA); bal != -2000 {
		t.Fatalf("expected employer net -2000, got %d", bal)
	}

	// Completed is terminal.
	if err := svc.CancelAgreement(ctx, employerA, id); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("cancel completed: expected ErrInvalidData, got %v", err)
	}
}

func TestCancel_FromCreatedAndRejections(t *testing.T) {
	svc, _, clock, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token: tokenUSD, PeriodSeconds: 86400, NumPeriods: 4, GracePeriodSeconds: 100,
	})
	if err := svc.CancelAgreement(ctx, employerA, a.ID); err != nil {
		t.Fatalf("cancel created: %v", err)
	}

	clock.Advance(101 * time.Second)
	if err := svc.FinalizeGracePeriod(ctx, employerA, a.ID); err != nil {
		t.Fatalf("finalize with nothing locked: %v", err)
	}
	got, _ := svc.GetAgreement(ctx, a.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestSetArbiter(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	id := mustCreateFundedEscrow(ctx, svc, 1000, 86400, 4, 604800)

	if err := svc.SetArbiter(ctx, contributor, id, arbiterA); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.SetArbiter(ctx, employerA, id, arbiterA); err != nil {
		t.Fatalf("set arbiter: %v", err)
	}

	if err := svc.RaiseDispute(ctx, contributor, id); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := svc.SetArbiter(ctx, employerA, id, "addr-other"); !errors.Is(err, ErrActiveDispute) {
		t.Fatalf("expected ErrActiveDispute while dispute open, got %v", err)
	}
}

func TestGetAgreement_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.GetAgreement(context.Background(), 404); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
}

func TestGetEmployeeClaimState(t *testing.T) {
	svc, _, clock, _ := newTestService()
	ctx := context.Background()
	id := mustCreatePayroll(ctx, svc, 86400, 10, 10_000, 100, 250)

	clock.Advance(3 * 86400 * time.Second)

	state, err := svc.GetEmployeeClaimState(ctx, id, 1)
	if err != nil {
		t.Fatalf("claim state: %v", err)
	}
	if state.Address != employeeAddr(1) || state.SalaryPerPeriod != 250 {
		t.Fatalf("unexpected slot: %+v", state)
	}
	if state.ClaimablePeriods != 3 || state.ClaimableAmount != 750 {
		t.Fatalf("expected 3 periods / 750 claimable, got %+v", state)
	}

	if _, err := svc.GetEmployeeClaimState(ctx, id, 7); !errors.Is(err, ErrInvalidEmployeeIndex) {
		t.Fatalf("expected ErrInvalidEmployeeIndex, got %v", err)
	}
}

func TestPauseResume_WrongStateErrors(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	a, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor:     contributor,
		Token:           tokenUSD,
		AmountPerPeriod: 100,
		PeriodSeconds:   86400,
		NumPeriods:      2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.PauseAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrAgreementNotActivated) {
		t.Fatalf("pause before activation: expected ErrAgreementNotActivated, got %v", err)
	}
	if err := svc.ResumeAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrAgreementNotActivated) {
		t.Fatalf("resume before activation: expected ErrAgreementNotActivated, got %v", err)
	}

	if err := svc.RaiseDispute(ctx, contributor, a.ID); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrActiveDispute) {
		t.Fatalf("activate during dispute: expected ErrActiveDispute, got %v", err)
	}
	if err := svc.PauseAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrActiveDispute) {
		t.Fatalf("pause during dispute: expected ErrActiveDispute, got %v", err)
	}
	if err := svc.ResumeAgreement(ctx, employerA, a.ID); !errors.Is(err, ErrActiveDispute) {
		t.Fatalf("resume during dispute: expected ErrActiveDispute, got %v", err)
	}
}

func TestCreateEscrow_ScheduleTotalOverflow(t *testing.T) {
	svc, _, _, transfer := newTestService()
	ctx := context.Background()

	_, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor:     contributor,
		Token:           tokenUSD,
		AmountPerPeriod: math.MaxInt64/2 + 1,
		PeriodSeconds:   86400,
		NumPeriods:      2,
	})
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData on overflowing schedule, got %v", err)
	}
	if len(transfer.calls) != 0 {
		t.Fatalf("expected no transfer, got %d", len(transfer.calls))
	}
}
