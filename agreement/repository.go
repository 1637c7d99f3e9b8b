package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store backed by PostgreSQL. A save touches the
// agreement row, its employee and milestone child rows, the dispute record,
// and the outbox inside one transaction, mirroring the single-invocation
// atomicity the engine promises.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgxpool-backed store implementation.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// NextAgreementID allocates the next value of the shared agreement sequence.
func (s *PGStore) NextAgreementID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('agreement_ids')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("agreement: next id: %w", err)
	}
	return id, nil
}

const selectAgreementSQL = `
SELECT id, mode, status, employer, contributor, token,
       total_locked, claimed_amount, refunded_amount,
       period_seconds, num_periods, amount_per_period, claimed_periods,
       grace_period_seconds, created_at, activated_at, cancelled_at,
       dispute_state, dispute_raised_at, arbiter
FROM agreements
WHERE id = $1
`

// GetAgreement loads the agreement graph.
func (s *PGStore) GetAgreement(ctx context.Context, id int64) (*Agreement, error) {
	a, err := scanAgreement(s.pool.QueryRow(ctx, selectAgreementSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgreementNotFound
		}
		return nil, fmt.Errorf("agreement: get: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT address, salary_per_period, claimed_periods
		FROM agreement_employees WHERE agreement_id = $1 ORDER BY idx
	`, id)
	if err != nil {
		return nil, fmt.Errorf("agreement: load employees: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var emp Employee
		if err := rows.Scan(&emp.Address, &emp.SalaryPerPeriod, &emp.ClaimedPeriods); err != nil {
			return nil, fmt.Errorf("agreement: scan employee: %w", err)
		}
		a.Employees = append(a.Employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate employees: %w", err)
	}

	mrows, err := s.pool.Query(ctx, `
		SELECT amount, completed, claimed
		FROM agreement_milestones WHERE agreement_id = $1 ORDER BY idx
	`, id)
	if err != nil {
		return nil, fmt.Errorf("agreement: load milestones: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m Milestone
		if err := mrows.Scan(&m.Amount, &m.Completed, &m.Claimed); err != nil {
			return nil, fmt.Errorf("agreement: scan milestone: %w", err)
		}
		a.Milestones = append(a.Milestones, m)
	}
	if err := mrows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate milestones: %w", err)
	}

	assertConserved(a)
	return a, nil
}

// SaveAgreement upserts the full agreement graph and appends outbox events
// in a single transaction.
func (s *PGStore) SaveAgreement(ctx context.Context, a *Agreement, d *Dispute, events []Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsertSQL = `
INSERT INTO agreements (
    id, mode, status, employer, contributor, token,
    total_locked, claimed_amount, refunded_amount,
    period_seconds, num_periods, amount_per_period, claimed_periods,
    grace_period_seconds, created_at, activated_at, cancelled_at,
    dispute_state, dispute_raised_at, arbiter
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    total_locked = EXCLUDED.total_locked,
    claimed_amount = EXCLUDED.claimed_amount,
    refunded_amount = EXCLUDED.refunded_amount,
    claimed_periods = EXCLUDED.claimed_periods,
    activated_at = EXCLUDED.activated_at,
    cancelled_at = EXCLUDED.cancelled_at,
    dispute_state = EXCLUDED.dispute_state,
    dispute_raised_at = EXCLUDED.dispute_raised_at,
    arbiter = EXCLUDED.arbiter
`
	var contributor *string
	if a.Contributor != "" {
		contributor = &a.Contributor
	}
	if _, err := tx.Exec(ctx, upsertSQL,
		a.ID, a.Mode, a.Status, a.Employer, contributor, a.Token,
		a.TotalLocked, a.ClaimedAmount, a.RefundedAmount,
		a.PeriodSeconds, a.NumPeriods, a.AmountPerPeriod, a.ClaimedPeriods,
		a.GracePeriodSeconds, a.CreatedAt, a.ActivatedAt, a.CancelledAt,
		a.DisputeState, a.DisputeRaisedAt, a.Arbiter,
	); err != nil {
		return fmt.Errorf("agreement: upsert: %w", err)
	}

	// Rosters are small; replacing the child rows keeps indices aligned
	// with the in-memory slices.
	if _, err := tx.Exec(ctx, `DELETE FROM agreement_employees WHERE agreement_id = $1`, a.ID); err != nil {
		return fmt.Errorf("agreement: clear employees: %w", err)
	}
	for i, emp := range a.Employees {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agreement_employees (agreement_id, idx, address, salary_per_period, claimed_periods)
			VALUES ($1,$2,$3,$4,$5)
		`, a.ID, i, emp.Address, emp.SalaryPerPeriod, emp.ClaimedPeriods); err != nil {
			return fmt.Errorf("agreement: insert employee: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM agreement_milestones WHERE agreement_id = $1`, a.ID); err != nil {
		return fmt.Errorf("agreement: clear milestones: %w", err)
	}
	for i, m := range a.Milestones {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agreement_milestones (agreement_id, idx, amount, completed, claimed)
			VALUES ($1,$2,$3,$4,$5)
		`, a.ID, i, m.Amount, m.Completed, m.Claimed); err != nil {
			return fmt.Errorf("agreement: insert milestone: %w", err)
		}
	}

	if d != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO disputes (id, agreement_id, raised_by, state, raised_at, resolved_at, pay_counterpart, refund_employer)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (agreement_id) DO UPDATE SET
			    state = EXCLUDED.state,
			    resolved_at = EXCLUDED.resolved_at,
			    pay_counterpart = EXCLUDED.pay_counterpart,
			    refund_employer = EXCLUDED.refund_employer
		`, d.ID, d.AgreementID, d.RaisedBy, d.State, d.RaisedAt, d.ResolvedAt, d.PayCounterpart, d.RefundEmployer); err != nil {
			return fmt.Errorf("agreement: upsert dispute: %w", err)
		}
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("agreement: marshal event payload: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO outbox (id, topic, agreement_id, payload, created_at)
			VALUES ($1,$2,$3,$4::jsonb,$5)
		`, ev.ID, ev.Topic, ev.AgreementID, string(payload), ev.CreatedAt); err != nil {
			return fmt.Errorf("agreement: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("agreement: commit save: %w", err)
	}
	return nil
}

// GetDispute loads the dispute record for the agreement.
func (s *PGStore) GetDispute(ctx context.Context, agreementID int64) (*Dispute, error) {
	const query = `
		SELECT id, agreement_id, raised_by, state, raised_at, resolved_at, pay_counterpart, refund_employer
		FROM disputes
		WHERE agreement_id = $1
	`
	var d Dispute
	err := s.pool.QueryRow(ctx, query, agreementID).Scan(
		&d.ID, &d.AgreementID, &d.RaisedBy, &d.State, &d.RaisedAt, &d.ResolvedAt,
		&d.PayCounterpart, &d.RefundEmployer,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDispute
		}
		return nil, fmt.Errorf("agreement: get dispute: %w", err)
	}
	return &d, nil
}

func scanAgreement(row pgx.Row) (*Agreement, error) {
	var (
		a           Agreement
		contributor *string
		activatedAt *time.Time
		cancelledAt *time.Time
		disputedAt  *time.Time
	)
	err := row.Scan(
		&a.ID, &a.Mode, &a.Status, &a.Employer, &contributor, &a.Token,
		&a.TotalLocked, &a.ClaimedAmount, &a.RefundedAmount,
		&a.PeriodSeconds, &a.NumPeriods, &a.AmountPerPeriod, &a.ClaimedPeriods,
		&a.GracePeriodSeconds, &a.CreatedAt, &activatedAt, &cancelledAt,
		&a.DisputeState, &disputedAt, &a.Arbiter,
	)
	if err != nil {
		return nil, err
	}
	if contributor != nil {
		a.Contributor = *contributor
	}
	a.ActivatedAt = activatedAt
	a.CancelledAt = cancelledAt
	a.DisputeRaisedAt = disputedAt
	return &a, nil
}
