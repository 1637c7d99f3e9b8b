package agreement

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemStore_IDsMonotonicUnderConcurrency(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	const n = 64
	var (
		mu  sync.Mutex
		ids = make(map[int64]bool, n)
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.NextAgreementID(ctx)
			if err != nil {
				t.Errorf("next id: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("expected %d distinct ids, got %d", n, len(ids))
	}
	for id := range ids {
		if id < 1 || id > n {
			t.Fatalf("id %d outside the allocated range", id)
		}
	}
}

func TestMemStore_ReadsAreIsolatedCopies(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	a := &Agreement{
		ID:       1,
		Mode:     ModePayroll,
		Status:   StatusCreated,
		Employer: employerA,
		Token:    tokenUSD,
		Employees: []Employee{
			{Address: employeeAddr(0), SalaryPerPeriod: 100},
		},
	}
	if err := store.SaveAgreement(ctx, a, nil, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the saved pointer and a read copy must not leak into the store.
	a.Employees[0].SalaryPerPeriod = 999
	got, err := store.GetAgreement(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Employees[0].SalaryPerPeriod != 100 {
		t.Fatalf("caller mutation leaked into the store: %+v", got.Employees[0])
	}

	got.Status = StatusCancelled
	again, _ := store.GetAgreement(ctx, 1)
	if again.Status != StatusCreated {
		t.Fatalf("read-copy mutation leaked into the store: %s", again.Status)
	}
}

func TestMemStore_NotFound(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if _, err := store.GetAgreement(ctx, 99); !errors.Is(err, ErrAgreementNotFound) {
		t.Fatalf("expected ErrAgreementNotFound, got %v", err)
	}
	if _, err := store.GetDispute(ctx, 99); !errors.Is(err, ErrNoDispute) {
		t.Fatalf("expected ErrNoDispute, got %v", err)
	}
}
