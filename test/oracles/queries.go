package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns zero rows on a healthy database. Any row is
// an invariant violation.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_funds_conserved",
			SQL: `SELECT id, total_locked, claimed_amount, refunded_amount FROM agreements
                  WHERE claimed_amount + refunded_amount > total_locked
                     OR claimed_amount < 0 OR refunded_amount < 0 OR total_locked < 0`,
		},
		{
			Name: "O2_claim_counter_bounds",
			SQL: `SELECT id FROM agreements
                  WHERE claimed_periods < 0 OR (num_periods > 0 AND claimed_periods > num_periods)
                  UNION ALL
                  SELECT e.agreement_id FROM agreement_employees e
                  JOIN agreements a ON a.id = e.agreement_id
                  WHERE e.claimed_periods < 0 OR e.claimed_periods > a.num_periods`,
		},
		{
			Name: "O3_milestone_claim_gate",
			SQL: `SELECT agreement_id, idx FROM agreement_milestones
                  WHERE claimed AND NOT completed`,
		},
		{
			Name: "O4_dispute_state_sync",
			SQL: `SELECT d.id FROM disputes d
                  JOIN agreements a ON a.id = d.agreement_id
                  WHERE (d.state = 'raised' AND a.status <> 'disputed')
                     OR (d.state = 'resolved' AND a.status <> 'completed')`,
		},
		{
			Name: "O5_disputed_without_record",
			SQL: `SELECT a.id FROM agreements a
                  WHERE a.status = 'disputed'
                    AND NOT EXISTS (
                        SELECT 1 FROM disputes d
                        WHERE d.agreement_id = a.id AND d.state = 'raised')`,
		},
		{
			Name: "O6_dispute_payout_bound",
			SQL: `SELECT d.id FROM disputes d
                  JOIN agreements a ON a.id = d.agreement_id
                  WHERE d.state = 'resolved'
                    AND d.pay_counterpart + d.refund_employer > a.total_locked`,
		},
		{
			Name: "O7_outbox_liveness",
			SQL: `SELECT id, topic FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O8_balance_non_negative",
			SQL:  `SELECT token, address, balance FROM accounts WHERE balance < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and a sample
// row) or an empty name when everything holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
