package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the dispute does not exist.
	ErrNotFound = errors.New("dispute: not found")
	// ErrForbidden signals the caller is not a party to the dispute's
	// agreement.
	ErrForbidden = errors.New("dispute: forbidden")
)

// Repository provides read access to dispute records. Raising and resolving
// disputes goes through the agreement engine; this surface only serves
// listings and lookups for dashboards.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns disputes visible to the caller, meaning those on agreements
// where the caller is the employer, the raiser, or the configured arbiter.
// A non-zero agreementID filters to one agreement.
func (r *Repository) List(ctx context.Context, caller string, agreementID int64) ([]Record, error) {
	query := `
		SELECT d.id, d.agreement_id, a.employer, d.raised_by, d.state,
		       d.raised_at, d.resolved_at, d.pay_counterpart, d.refund_employer
		FROM disputes d
		JOIN agreements a ON a.id = d.agreement_id
		WHERE (a.employer = $1 OR d.raised_by = $1 OR a.arbiter = $1)
	`
	args := []any{caller}
	if agreementID != 0 {
		query += " AND d.agreement_id = $2"
		args = append(args, agreementID)
	}
	query += " ORDER BY d.raised_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AgreementID, &rec.Employer, &rec.RaisedBy, &rec.State,
			&rec.RaisedAt, &rec.ResolvedAt, &rec.PayCounterpart, &rec.RefundEmployer); err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// Get fetches one dispute, enforcing the same visibility rule as List.
func (r *Repository) Get(ctx context.Context, caller, disputeID string) (Record, error) {
	const query = `
		SELECT d.id, d.agreement_id, a.employer, a.arbiter, d.raised_by, d.state,
		       d.raised_at, d.resolved_at, d.pay_counterpart, d.refund_employer
		FROM disputes d
		JOIN agreements a ON a.id = d.agreement_id
		WHERE d.id = $1
	`
	var (
		rec     Record
		arbiter string
	)
	err := r.pool.QueryRow(ctx, query, disputeID).Scan(
		&rec.ID, &rec.AgreementID, &rec.Employer, &arbiter, &rec.RaisedBy, &rec.State,
		&rec.RaisedAt, &rec.ResolvedAt, &rec.PayCounterpart, &rec.RefundEmployer,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	if caller != rec.Employer && caller != rec.RaisedBy && (arbiter == "" || caller != arbiter) {
		return Record{}, ErrForbidden
	}
	return rec, nil
}
