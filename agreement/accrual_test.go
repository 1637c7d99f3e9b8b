package agreement

import (
	"errors"
	"testing"
	"time"
)

func ts(unix int64) time.Time { return time.Unix(unix, 0).UTC() }

func TestElapsedPeriods_TruncatesAndCaps(t *testing.T) {
	start := ts(0)

	cases := []struct {
		name    string
		now     time.Time
		periodS int64
		num     int
		want    int
	}{
		{"before activation", ts(-10), 100, 5, 0},
		{"mid first period", ts(99), 100, 5, 0},
		{"exact boundary", ts(100), 100, 5, 1},
		{"truncates partial", ts(250), 100, 5, 2},
		{"caps at schedule", ts(10_000), 100, 5, 5},
	}
	for _, tc := range cases {
		if got := elapsedPeriods(start, tc.now, tc.periodS, tc.num); got != tc.want {
			t.Errorf("%s: elapsedPeriods = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestAccrueTimeBased(t *testing.T) {
	activated := ts(0)
	a := &Agreement{
		Mode:            ModeEscrow,
		Status:          StatusActive,
		ActivatedAt:     &activated,
		PeriodSeconds:   86400,
		NumPeriods:      4,
		AmountPerPeriod: 1000,
		TotalLocked:     4000,
	}

	periods, amount, err := accrueTimeBased(a, ts(2*86400+5))
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if periods != 2 || amount != 2000 {
		t.Fatalf("expected 2 periods / 2000, got %d / %d", periods, amount)
	}

	a.ClaimedPeriods = 2
	if _, _, err := accrueTimeBased(a, ts(2*86400+5)); !errors.Is(err, ErrNoPeriodsToClaim) {
		t.Fatalf("expected ErrNoPeriodsToClaim, got %v", err)
	}

	a.ClaimedPeriods = 4
	if _, _, err := accrueTimeBased(a, ts(100*86400)); !errors.Is(err, ErrAllPeriodsClaimed) {
		t.Fatalf("expected ErrAllPeriodsClaimed, got %v", err)
	}
}

func TestAccrueTimeBased_CutoffAtCancellation(t *testing.T) {
	activated := ts(0)
	cancelled := ts(2 * 86400)
	a := &Agreement{
		Mode:            ModeEscrow,
		Status:          StatusCancelled,
		ActivatedAt:     &activated,
		CancelledAt:     &cancelled,
		PeriodSeconds:   86400,
		NumPeriods:      10,
		AmountPerPeriod: 500,
		TotalLocked:     5000,
	}

	// Three more days pass inside a long grace window; nothing accrues
	// past the cancellation instant.
	periods, amount, err := accrueTimeBased(a, ts(5*86400))
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if periods != 2 || amount != 1000 {
		t.Fatalf("expected accrual frozen at 2 periods / 1000, got %d / %d", periods, amount)
	}
}

func TestAccruePayroll_IndexAndSlotChecks(t *testing.T) {
	activated := ts(0)
	a := &Agreement{
		Mode:          ModePayroll,
		Status:        StatusActive,
		ActivatedAt:   &activated,
		PeriodSeconds: 86400,
		NumPeriods:    4,
		Employees: []Employee{
			{Address: "addr-a", SalaryPerPeriod: 100},
			{SalaryPerPeriod: 100}, // empty slot
		},
	}

	if _, _, err := accruePayroll(a, 5, ts(86400)); !errors.Is(err, ErrInvalidEmployeeIndex) {
		t.Fatalf("expected ErrInvalidEmployeeIndex, got %v", err)
	}
	if _, _, err := accruePayroll(a, -1, ts(86400)); !errors.Is(err, ErrInvalidEmployeeIndex) {
		t.Fatalf("expected ErrInvalidEmployeeIndex for negative, got %v", err)
	}
	if _, _, err := accruePayroll(a, 1, ts(86400)); !errors.Is(err, ErrNoEmployee) {
		t.Fatalf("expected ErrNoEmployee, got %v", err)
	}

	periods, amount, err := accruePayroll(a, 0, ts(3*86400))
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if periods != 3 || amount != 300 {
		t.Fatalf("expected 3 periods / 300, got %d / %d", periods, amount)
	}
}

func TestAccrueMilestone(t *testing.T) {
	a := &Agreement{
		Mode:   ModeEscrow,
		Status: StatusActive,
		Milestones: []Milestone{
			{Amount: 500, Completed: true},
			{Amount: 700},
			{Amount: 900, Completed: true, Claimed: true},
		},
	}

	amount, err := accrueMilestone(a, 1)
	if err != nil || amount != 500 {
		t.Fatalf("milestone 1: amount=%d err=%v", amount, err)
	}
	if _, err := accrueMilestone(a, 2); !errors.Is(err, ErrNoPeriodsToClaim) {
		t.Fatalf("unapproved milestone: expected ErrNoPeriodsToClaim, got %v", err)
	}
	if _, err := accrueMilestone(a, 3); !errors.Is(err, ErrNoPeriodsToClaim) {
		t.Fatalf("claimed milestone: expected ErrNoPeriodsToClaim, got %v", err)
	}
	if _, err := accrueMilestone(a, 4); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("out of range: expected ErrInvalidData, got %v", err)
	}
}
