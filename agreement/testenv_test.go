package agreement

import (
	"context"
	"fmt"
	"time"

	"payflow/token"
)

// Shared fixtures for the engine tests: a fixed, manually advanced clock and
// a recording transfer fake so unit tests run deterministically against the
// in-memory store.

const (
	escrowAcct  = "escrow-vault"
	employerA   = "addr-employer"
	contributor = "addr-contrib"
	arbiterA    = "addr-arbiter"
	tokenUSD    = "USDX"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type transferCall struct {
	Token  string
	From   string
	To     string
	Amount int64
}

type fakeTransferor struct {
	calls  []transferCall
	failTo map[string]bool
}

func newFakeTransferor() *fakeTransferor {
	return &fakeTransferor{failTo: make(map[string]bool)}
}

func (f *fakeTransferor) Transfer(ctx context.Context, token, from, to string, amount int64) error {
	if f.failTo[to] {
		return fmt.Errorf("transfer to %s rejected", to)
	}
	f.calls = append(f.calls, transferCall{Token: token, From: from, To: to, Amount: amount})
	return nil
}

// TransferSplit applies every leg or none, mirroring the real ledger: a
// rejected recipient anywhere in the split fails the whole call before any
// leg is recorded.
func (f *fakeTransferor) TransferSplit(ctx context.Context, tok, from string, legs []token.Leg) error {
	for _, leg := range legs {
		if f.failTo[leg.To] {
			return fmt.Errorf("transfer to %s rejected", leg.To)
		}
	}
	for _, leg := range legs {
		f.calls = append(f.calls, transferCall{Token: tok, From: from, To: leg.To, Amount: leg.Amount})
	}
	return nil
}

// balanceOf sums the recorded credits minus debits for an address.
func (f *fakeTransferor) balanceOf(addr string) int64 {
	var total int64
	for _, c := range f.calls {
		if c.To == addr {
			total += c.Amount
		}
		if c.From == addr {
			total -= c.Amount
		}
	}
	return total
}

func newTestService() (*Service, *MemStore, *fakeClock, *fakeTransferor) {
	store := NewMemStore()
	clock := newFakeClock()
	transfer := newFakeTransferor()
	svc := NewService(store, transfer, escrowAcct)
	svc.now = clock.Now
	return svc, store, clock, transfer
}

// mustCreateFundedEscrow creates and activates a time-based escrow
// agreement covering the full schedule amount.
func mustCreateFundedEscrow(ctx context.Context, svc *Service, amountPerPeriod int64, periodSeconds int64, numPeriods int, grace int64) int64 {
	a, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor:        contributor,
		Token:              tokenUSD,
		AmountPerPeriod:    amountPerPeriod,
		PeriodSeconds:      periodSeconds,
		NumPeriods:         numPeriods,
		GracePeriodSeconds: grace,
	})
	if err != nil {
		panic(fmt.Sprintf("create escrow: %v", err))
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); err != nil {
		panic(fmt.Sprintf("activate: %v", err))
	}
	return a.ID
}

// mustCreateMilestoneAgreement creates a milestone agreement with count
// milestones of amount each.
func mustCreateMilestoneAgreement(ctx context.Context, svc *Service, amount int64, count int) int64 {
	a, err := svc.CreateMilestoneAgreement(ctx, employerA, contributor, tokenUSD, 604800)
	if err != nil {
		panic(fmt.Sprintf("create milestone agreement: %v", err))
	}
	for i := 0; i < count; i++ {
		if _, err := svc.AddMilestone(ctx, employerA, a.ID, amount); err != nil {
			panic(fmt.Sprintf("add milestone: %v", err))
		}
	}
	return a.ID
}

// mustCreatePayroll creates a payroll agreement with the given employee
// salaries, funds it with funding, and activates it.
func mustCreatePayroll(ctx context.Context, svc *Service, periodSeconds int64, numPeriods int, funding int64, salaries ...int64) int64 {
	a, err := svc.CreatePayrollAgreement(ctx, employerA, CreatePayrollParams{
		Token:              tokenUSD,
		PeriodSeconds:      periodSeconds,
		NumPeriods:         numPeriods,
		GracePeriodSeconds: 604800,
	})
	if err != nil {
		panic(fmt.Sprintf("create payroll: %v", err))
	}
	for i, salary := range salaries {
		if err := svc.AddEmployee(ctx, employerA, a.ID, employeeAddr(i), salary); err != nil {
			panic(fmt.Sprintf("add employee: %v", err))
		}
	}
	if funding > 0 {
		if err := svc.FundAgreement(ctx, employerA, a.ID, funding); err != nil {
			panic(fmt.Sprintf("fund: %v", err))
		}
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); err != nil {
		panic(fmt.Sprintf("activate: %v", err))
	}
	return a.ID
}

func employeeAddr(i int) string {
	return fmt.Sprintf("addr-employee-%d", i)
}
