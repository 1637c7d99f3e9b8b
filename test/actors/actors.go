package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"payflow/agreement"
	"payflow/token"
)

// Env bundles the wired engine the actors drive. Each actor works its own
// agreements and addresses, so concurrent actors exercise the engine without
// sharing state beyond the database.
type Env struct {
	Engine *agreement.Service
	Ledger *token.Ledger
	Token  string
}

// expected reports whether err is a typed engine outcome the actor can keep
// running through. Anything untyped is an infrastructure failure.
func expected(err error) bool {
	var typed *agreement.Error
	return errors.As(err, &typed)
}

func pause(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// EscrowLifecycle repeatedly runs a full time-based escrow schedule with a
// one-second period: mint, create, activate, claim until the agreement
// auto-completes.
func EscrowLifecycle(ctx context.Context, env Env, id int, stop <-chan struct{}) error {
	employer := fmt.Sprintf("load-escrow-employer-%d", id)
	contributor := fmt.Sprintf("load-escrow-contrib-%d", id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := env.Ledger.Mint(ctx, env.Token, employer, 10_000); err != nil {
			return fmt.Errorf("escrow actor %d: mint: %w", id, err)
		}
		a, err := env.Engine.CreateEscrowAgreement(ctx, employer, agreement.CreateEscrowParams{
			Contributor:        contributor,
			Token:              env.Token,
			AmountPerPeriod:    100,
			PeriodSeconds:      1,
			NumPeriods:         3,
			GracePeriodSeconds: 2,
		})
		if err != nil {
			return fmt.Errorf("escrow actor %d: create: %w", id, err)
		}
		if err := env.Engine.ActivateAgreement(ctx, employer, a.ID); err != nil {
			return fmt.Errorf("escrow actor %d: activate: %w", id, err)
		}

		for {
			if !pause(stop, time.Duration(200+rand.Intn(400))*time.Millisecond) {
				return nil
			}
			if _, err := env.Engine.ClaimTimeBased(ctx, contributor, a.ID); err != nil && !expected(err) {
				return fmt.Errorf("escrow actor %d: claim: %w", id, err)
			}
			got, err := env.Engine.GetAgreement(ctx, a.ID)
			if err != nil {
				return fmt.Errorf("escrow actor %d: reload: %w", id, err)
			}
			if got.Status == agreement.StatusCompleted {
				break
			}
		}
	}
}

// PayrollBatcher runs a payroll agreement with three employees and settles
// accrued salaries through the batch path, pausing and resuming along the
// way, then cancels and finalizes the grace window.
func PayrollBatcher(ctx context.Context, env Env, id int, stop <-chan struct{}) error {
	employer := fmt.Sprintf("load-payroll-employer-%d", id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := env.Ledger.Mint(ctx, env.Token, employer, 50_000); err != nil {
			return fmt.Errorf("payroll actor %d: mint: %w", id, err)
		}
		a, err := env.Engine.CreatePayrollAgreement(ctx, employer, agreement.CreatePayrollParams{
			Token:              env.Token,
			PeriodSeconds:      1,
			NumPeriods:         5,
			GracePeriodSeconds: 1,
		})
		if err != nil {
			return fmt.Errorf("payroll actor %d: create: %w", id, err)
		}
		for i := 0; i < 3; i++ {
			addr := fmt.Sprintf("load-payroll-worker-%d-%d", id, i)
			if err := env.Engine.AddEmployee(ctx, employer, a.ID, addr, int64(50+10*i)); err != nil {
				return fmt.Errorf("payroll actor %d: add employee: %w", id, err)
			}
		}
		if err := env.Engine.FundAgreement(ctx, employer, a.ID, 10_000); err != nil {
			return fmt.Errorf("payroll actor %d: fund: %w", id, err)
		}
		if err := env.Engine.ActivateAgreement(ctx, employer, a.ID); err != nil {
			return fmt.Errorf("payroll actor %d: activate: %w", id, err)
		}

		for round := 0; round < 4; round++ {
			if !pause(stop, time.Duration(400+rand.Intn(600))*time.Millisecond) {
				return nil
			}
			if rand.Intn(4) == 0 {
				if err := env.Engine.PauseAgreement(ctx, employer, a.ID); err != nil && !expected(err) {
					return fmt.Errorf("payroll actor %d: pause: %w", id, err)
				}
				if err := env.Engine.ResumeAgreement(ctx, employer, a.ID); err != nil && !expected(err) {
					return fmt.Errorf("payroll actor %d: resume: %w", id, err)
				}
			}
			if _, err := env.Engine.BatchClaimPayroll(ctx, employer, a.ID, []int{0, 1, 2}); err != nil && !expected(err) {
				return fmt.Errorf("payroll actor %d: batch claim: %w", id, err)
			}
		}

		if err := env.Engine.CancelAgreement(ctx, employer, a.ID); err != nil && !expected(err) {
			return fmt.Errorf("payroll actor %d: cancel: %w", id, err)
		}
		if !pause(stop, 1500*time.Millisecond) {
			return nil
		}
		if err := env.Engine.FinalizeGracePeriod(ctx, employer, a.ID); err != nil && !expected(err) {
			return fmt.Errorf("payroll actor %d: finalize: %w", id, err)
		}
	}
}

// Disputer runs the arbitration path end to end: milestone agreement, raised
// dispute, arbiter-decided split.
func Disputer(ctx context.Context, env Env, id int, stop <-chan struct{}) error {
	employer := fmt.Sprintf("load-dispute-employer-%d", id)
	contributor := fmt.Sprintf("load-dispute-contrib-%d", id)
	arbiter := fmt.Sprintf("load-dispute-arbiter-%d", id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := env.Ledger.Mint(ctx, env.Token, employer, 5_000); err != nil {
			return fmt.Errorf("dispute actor %d: mint: %w", id, err)
		}
		a, err := env.Engine.CreateMilestoneAgreement(ctx, employer, contributor, env.Token, 60)
		if err != nil {
			return fmt.Errorf("dispute actor %d: create: %w", id, err)
		}
		if _, err := env.Engine.AddMilestone(ctx, employer, a.ID, 1_000); err != nil {
			return fmt.Errorf("dispute actor %d: add milestone: %w", id, err)
		}
		if err := env.Engine.SetArbiter(ctx, employer, a.ID, arbiter); err != nil {
			return fmt.Errorf("dispute actor %d: set arbiter: %w", id, err)
		}

		if err := env.Engine.RaiseDispute(ctx, contributor, a.ID); err != nil {
			return fmt.Errorf("dispute actor %d: raise: %w", id, err)
		}
		if !pause(stop, time.Duration(100+rand.Intn(300))*time.Millisecond) {
			return nil
		}
		payout := int64(rand.Intn(1_001))
		if err := env.Engine.ResolveDispute(ctx, arbiter, a.ID, payout, 1_000-payout); err != nil {
			return fmt.Errorf("dispute actor %d: resolve: %w", id, err)
		}
	}
}

// OutboxWorker drains pending outbox rows with SKIP LOCKED, occasionally
// simulating a failed delivery attempt.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 20`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 20)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed' WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
