package vision

import (
	"context"
	"log/slog"

	"github.com/TheGonzalezDesigns/corpus-vision/errors"
)

// Router tries providers in order and returns the first successful
// description. A provider failure is logged and the next one tried.
type Router struct {
	providers []Describer
	logger    *slog.Logger
}

// NewRouter creates a router over the given providers in priority order.
func NewRouter(logger *slog.Logger, providers ...Describer) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{providers: providers, logger: logger}
}

// Name implements Describer.
func (r *Router) Name() string {
	return "router"
}

// Providers returns the number of configured providers.
func (r *Router) Providers() int {
	return len(r.providers)
}

// Describe implements Describer by delegating to the first provider that
// succeeds. Returns ErrAllProvidersFailed when none do.
func (r *Router) Describe(ctx context.Context, jpeg []byte) (Description, error) {
	if len(r.providers) == 0 {
		return Description{}, errors.WrapInvalid(errors.ErrMissingConfig, "Router", "Describe",
			"no providers configured")
	}

	for _, provider := range r.providers {
		if ctx.Err() != nil {
			return Description{}, ctx.Err()
		}

		desc, err := provider.Describe(ctx, jpeg)
		if err == nil {
			r.logger.Debug("vision provider succeeded", "provider", provider.Name())
			return desc, nil
		}
		r.logger.Warn("vision provider failed, trying next",
			"provider", provider.Name(), "error", err)
	}

	return Description{}, errors.WrapTransient(errors.ErrAllProvidersFailed, "Router", "Describe",
		"exhausted provider list")
}

var _ Describer = (*Router)(nil)
