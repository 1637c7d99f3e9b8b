package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrInsufficientFunds signals the debit side lacks the balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrNoAccount signals the debit account does not exist.
	ErrNoAccount = errors.New("token: account not found")
)

// Ledger moves token balances between account rows. A transfer is
// all-or-nothing: debit and credit commit in the same transaction or not
// at all.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger wires a pgxpool-backed account ledger.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Transfer debits from and credits to for amount of the given token.
func (l *Ledger) Transfer(ctx context.Context, token, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("token: non-positive transfer amount %d", amount)
	}
	if token == "" || from == "" || to == "" {
		return fmt.Errorf("token: transfer endpoints required")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("token: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $3, updated_at = now()
		WHERE token = $1 AND address = $2 AND balance >= $3
	`, token, from, amount)
	if err != nil {
		return fmt.Errorf("token: debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM accounts WHERE token = $1 AND address = $2)
		`, token, from).Scan(&exists); err != nil {
			return fmt.Errorf("token: check debit account: %w", err)
		}
		if !exists {
			return ErrNoAccount
		}
		return ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (token, address, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, address) DO UPDATE SET
		    balance = accounts.balance + EXCLUDED.balance,
		    updated_at = now()
	`, token, to, amount); err != nil {
		return fmt.Errorf("token: credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("token: commit transfer: %w", err)
	}
	return nil
}

// Leg is one credit side of a split transfer.
type Leg struct {
	To     string
	Amount int64
}

// TransferSplit debits from once for the sum of the legs and credits every
// leg, all in the same transaction. Zero-amount legs are skipped. An error
// means no balance moved.
func (l *Ledger) TransferSplit(ctx context.Context, token, from string, legs []Leg) error {
	if token == "" || from == "" {
		return fmt.Errorf("token: transfer endpoints required")
	}
	var total int64
	for _, leg := range legs {
		if leg.Amount < 0 {
			return fmt.Errorf("token: negative transfer amount %d", leg.Amount)
		}
		if leg.Amount > 0 && leg.To == "" {
			return fmt.Errorf("token: transfer endpoints required")
		}
		total += leg.Amount
	}
	if total <= 0 {
		return fmt.Errorf("token: non-positive transfer amount %d", total)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("token: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $3, updated_at = now()
		WHERE token = $1 AND address = $2 AND balance >= $3
	`, token, from, total)
	if err != nil {
		return fmt.Errorf("token: debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM accounts WHERE token = $1 AND address = $2)
		`, token, from).Scan(&exists); err != nil {
			return fmt.Errorf("token: check debit account: %w", err)
		}
		if !exists {
			return ErrNoAccount
		}
		return ErrInsufficientFunds
	}

	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (token, address, balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (token, address) DO UPDATE SET
			    balance = accounts.balance + EXCLUDED.balance,
			    updated_at = now()
		`, token, leg.To, leg.Amount); err != nil {
			return fmt.Errorf("token: credit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("token: commit transfer: %w", err)
	}
	return nil
}

// Mint credits amount to an account without a debit side. Used to seed
// balances in tests and by the platform treasury.
func (l *Ledger) Mint(ctx context.Context, token, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("token: non-positive mint amount %d", amount)
	}
	if _, err := l.pool.Exec(ctx, `
		INSERT INTO accounts (token, address, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, address) DO UPDATE SET
		    balance = accounts.balance + EXCLUDED.balance,
		    updated_at = now()
	`, token, to, amount); err != nil {
		return fmt.Errorf("token: mint: %w", err)
	}
	return nil
}

// GetAccount fetches one balance row.
func (l *Ledger) GetAccount(ctx context.Context, token, address string) (Account, error) {
	const query = `
		SELECT token, address, balance, updated_at
		FROM accounts
		WHERE token = $1 AND address = $2
	`
	var acct Account
	err := l.pool.QueryRow(ctx, query, token, address).Scan(
		&acct.Token, &acct.Address, &acct.Balance, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNoAccount
		}
		return Account{}, fmt.Errorf("token: get account: %w", err)
	}
	return acct, nil
}

// ListAccounts returns up to limit balance rows for a token, largest first.
func (l *Ledger) ListAccounts(ctx context.Context, token string, limit int) ([]Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `
		SELECT token, address, balance, updated_at
		FROM accounts
		WHERE token = $1
		ORDER BY balance DESC, address
		LIMIT $2
	`, token, limit)
	if err != nil {
		return nil, fmt.Errorf("token: list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]Account, 0, limit)
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.Token, &acct.Address, &acct.Balance, &acct.UpdatedAt); err != nil {
			return nil, fmt.Errorf("token: scan account: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("token: iterate accounts: %w", err)
	}
	return out, nil
}
