// Package registry resolves chemicals by name: first from the local
// repository, then from a remote lookup whose answers are stored locally.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"graphmix/internal/core"
	"graphmix/internal/ctxlog"
	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
)

// Lookup resolves a chemical the local repository does not know.
type Lookup interface {
	Lookup(ctx context.Context, name string) (chem.Chemical, error)
}

// Registry is safe for concurrent use when its repository is.
type Registry struct {
	repo    chem.Repository
	remote  Lookup
	metrics core.MetricsRecorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records local hits, remote lookups and misses.
func WithMetrics(rec core.MetricsRecorder) Option {
	return func(r *Registry) { r.metrics = rec }
}

// New builds a registry over repo. A nil remote makes it local-only.
func New(repo chem.Repository, remote Lookup, opts ...Option) *Registry {
	r := &Registry{repo: repo, remote: remote, metrics: core.NopMetrics{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the named chemical, consulting and caching the remote lookup
// on a local miss.
func (r *Registry) Get(ctx context.Context, name string) (chem.Chemical, error) {
	start := time.Now()
	log := ctxlog.FromContext(ctx)
	c, ok, err := r.repo.Get(ctx, name)
	if err != nil {
		return chem.Chemical{}, fmt.Errorf("registry: local get %s: %w", name, err)
	}
	if ok {
		r.metrics.Observe(ctx, core.OpRegistryLocal, true, time.Since(start))
		return c, nil
	}
	if r.remote == nil {
		r.metrics.Observe(ctx, core.OpRegistryMiss, false, time.Since(start))
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	log.Debug("chemical not stored locally, looking it up", "chemical", name)
	c, err = r.remote.Lookup(ctx, name)
	if err != nil {
		op := core.OpRegistryRemote
		if errors.Is(err, domain.ErrUnknownReference) {
			op = core.OpRegistryMiss
		}
		r.metrics.Observe(ctx, op, false, time.Since(start))
		return chem.Chemical{}, err
	}
	if err := r.repo.Add(ctx, c); err != nil && !errors.Is(err, domain.ErrDuplicateEntity) {
		r.metrics.Observe(ctx, core.OpRegistryRemote, false, time.Since(start))
		return chem.Chemical{}, fmt.Errorf("registry: store %s: %w", name, err)
	}
	r.metrics.Observe(ctx, core.OpRegistryRemote, true, time.Since(start))
	log.Info("chemical registered from remote lookup", "chemical", c.Name, "formula", c.Formula, "molar_mass", c.MolarMass.String())
	return c, nil
}

// Chemical is Get; it lets the registry serve as a chemical source for
// protocol files.
func (r *Registry) Chemical(ctx context.Context, name string) (chem.Chemical, error) {
	return r.Get(ctx, name)
}

// Add stores c locally. An existing name is a domain.DuplicateError.
func (r *Registry) Add(ctx context.Context, c chem.Chemical) error {
	_, ok, err := r.repo.Get(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("registry: local get %s: %w", c.Name, err)
	}
	if ok {
		return domain.DuplicateError{Entity: "chemical", Name: c.Name}
	}
	return r.repo.Add(ctx, c)
}

// List returns the locally stored chemicals.
func (r *Registry) List(ctx context.Context) ([]chem.Chemical, error) {
	return r.repo.List(ctx)
}
