package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"agenthub/internal/domain"
)

// Failover tries multiple providers in order, falling back to the next one
// when the current fails. It implements domain.CompletionProvider itself so
// it can stand in wherever a single provider is expected.
type Failover struct {
	providers []domain.CompletionProvider
	logger    *slog.Logger
}

// NewFailover creates a failover chain from the given providers.
// At least one provider is required.
func NewFailover(providers []domain.CompletionProvider, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{
		providers: providers,
		logger:    logger,
	}
}

func (fp *Failover) Name() string {
	names := make([]string, len(fp.providers))
	for i, p := range fp.providers {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, ",") + ")"
}

func (fp *Failover) Healthy(ctx context.Context) error {
	for _, p := range fp.providers {
		if err := p.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no healthy provider in failover chain")
}

// Complete tries each provider in order and returns the first successful
// response.
func (fp *Failover) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	var lastErr error
	for i, p := range fp.providers {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				fp.logger.Info("failover: used fallback provider",
					"provider", p.Name(),
					"attempt", i+1,
				)
			}
			return resp, nil
		}
		lastErr = err
		fp.logger.Warn("failover: provider failed, trying next",
			"provider", p.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("all providers in failover chain failed: %w", lastErr)
}
