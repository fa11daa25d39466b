package agency

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	GetByID(ctx context.Context, id string) (Agency, error)
	List(ctx context.Context, limit int) ([]Agency, error)
}

// Service exposes business-level agency operations.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the agency for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Agency, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit agencies.
func (s *Service) List(ctx context.Context, limit int) ([]Agency, error) {
	return s.repo.List(ctx, limit)
}

// GetApproved returns the agency only when it is approved to book at agency
// prices; other states yield ErrNotApproved.
func (s *Service) GetApproved(ctx context.Context, id string) (Agency, error) {
	agency, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Agency{}, err
	}
	if !agency.IsApproved() {
		return Agency{}, ErrNotApproved
	}
	return agency, nil
}
