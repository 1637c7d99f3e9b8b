package agreement

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TestPGStore_Integration connects to a real PostgreSQL via DATABASE_URL and
// drives a full escrow lifecycle through the pgx-backed store: create, claim,
// dispute, resolve, verifying the persisted graph and outbox after each step.
func TestPGStore_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "agreements") || !tableExists(ctx, t, pool, "disputes") || !tableExists(ctx, t, pool, "outbox") {
		t.Skip("database schema missing; run migrations: migrate -path migrations -database \"$DATABASE_URL\" up")
	}

	store := NewPGStore(pool)
	clock := newFakeClock()
	transfer := newFakeTransferor()
	svc := NewService(store, transfer, escrowAcct)
	svc.now = clock.Now

	a, err := svc.CreateEscrowAgreement(ctx, employerA, CreateEscrowParams{
		Contributor:        contributor,
		Token:              tokenUSD,
		AmountPerPeriod:    250,
		PeriodSeconds:      86400,
		NumPeriods:         4,
		GracePeriodSeconds: 604800,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM outbox WHERE agreement_id = $1`, a.ID)
		pool.Exec(ctx2, `DELETE FROM disputes WHERE agreement_id = $1`, a.ID)
		pool.Exec(ctx2, `DELETE FROM agreement_milestones WHERE agreement_id = $1`, a.ID)
		pool.Exec(ctx2, `DELETE FROM agreement_employees WHERE agreement_id = $1`, a.ID)
		pool.Exec(ctx2, `DELETE FROM agreements WHERE id = $1`, a.ID)
	})

	if err := svc.SetArbiter(ctx, employerA, a.ID, arbiterA); err != nil {
		t.Fatalf("set arbiter: %v", err)
	}
	if err := svc.ActivateAgreement(ctx, employerA, a.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	clock.Advance(86400 * time.Second)
	amount, err := svc.ClaimTimeBased(ctx, contributor, a.ID)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if amount != 250 {
		t.Fatalf("expected 250, got %d", amount)
	}

	// Reload through the store and verify what the claim persisted.
	got, err := store.GetAgreement(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != StatusActive || got.ClaimedAmount != 250 || got.ClaimedPeriods != 1 {
		t.Fatalf("unexpected persisted state: %+v", got)
	}

	if err := svc.RaiseDispute(ctx, contributor, a.ID); err != nil {
		t.Fatalf("raise: %v", err)
	}
	d, err := store.GetDispute(ctx, a.ID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}
	if d.RaisedBy != contributor || d.State != DisputeRaised {
		t.Fatalf("unexpected dispute record: %+v", d)
	}

	if err := svc.ResolveDispute(ctx, arbiterA, a.ID, 300, 450); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err = store.GetAgreement(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload after resolve: %v", err)
	}
	if got.Status != StatusCompleted || got.DisputeState != DisputeResolved {
		t.Fatalf("expected completed+resolved, got %+v", got)
	}
	if got.ClaimedAmount+got.RefundedAmount != got.TotalLocked {
		t.Fatalf("persisted ledger not settled: %+v", got)
	}

	// Each lifecycle step appended to the outbox within its save transaction.
	var outCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE agreement_id = $1`, a.ID).Scan(&outCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outCount < 5 {
		t.Fatalf("expected at least 5 outbox events (create, activate, claim, raise, resolve), got %d", outCount)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
