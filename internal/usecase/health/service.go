package health

import (
	"context"
	"fmt"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service reports service readiness.
type Service struct {
	store Pinger
}

// New creates a health service.
func New(store Pinger) *Service {
	return &Service{store: store}
}

// Check returns nil when the service can reach its store.
func (s *Service) Check(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}
