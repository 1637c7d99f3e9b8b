package agreement

import (
	"context"

	"payflow/token"
)

// Store abstracts agreement persistence so the engine runs identically
// against PostgreSQL (PGStore) and the deterministic in-memory store used by
// unit tests. Implementations must return defensive copies from reads and
// must persist a save (agreement row, child rows, dispute record, and outbox
// events) atomically: either all of it is retained or none.
type Store interface {
	// NextAgreementID allocates a strictly increasing agreement identifier.
	NextAgreementID(ctx context.Context) (int64, error)

	// GetAgreement returns the agreement graph or ErrAgreementNotFound.
	GetAgreement(ctx context.Context, id int64) (*Agreement, error)

	// SaveAgreement persists the agreement graph, the dispute record when
	// non-nil, and the events in one atomic write.
	SaveAgreement(ctx context.Context, a *Agreement, d *Dispute, events []Event) error

	// GetDispute returns the dispute record for the agreement or
	// ErrNoDispute when none was ever raised.
	GetDispute(ctx context.Context, agreementID int64) (*Dispute, error)
}

// Transferor is the external token-transfer capability. The engine treats
// each call as all-or-nothing: an error means no funds moved, across every
// leg of a split.
type Transferor interface {
	Transfer(ctx context.Context, token, from, to string, amount int64) error
	TransferSplit(ctx context.Context, tok, from string, legs []token.Leg) error
}
