package token

import "time"

// Account is one (token, address) balance row. Balances are integral token
// units and never go negative.
type Account struct {
	Token     string
	Address   string
	Balance   int64
	UpdatedAt time.Time
}
