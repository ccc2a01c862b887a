package chem

import "context"

// Repository stores chemicals keyed by name. Implementations live under
// internal/infra/persistence.
type Repository interface {
	Get(ctx context.Context, name string) (Chemical, bool, error)
	Add(ctx context.Context, c Chemical) error
	List(ctx context.Context) ([]Chemical, error)
}
