package dispute

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	List(ctx context.Context, caller string, agreementID int64) ([]Record, error)
	Get(ctx context.Context, caller, disputeID string) (Record, error)
}

// Service exposes read-level dispute operations to the API layer.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// List returns the disputes visible to the caller.
func (s *Service) List(ctx context.Context, caller string, agreementID int64) ([]Record, error) {
	return s.repo.List(ctx, caller, agreementID)
}

// Get returns one dispute if the caller may see it.
func (s *Service) Get(ctx context.Context, caller, disputeID string) (Record, error) {
	return s.repo.Get(ctx, caller, disputeID)
}
