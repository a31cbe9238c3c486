package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
	fallback "github.com/haasonsaas/nexus/internal/models"
)

// FallbackProvider wraps a primary LLMProvider with an ordered list of
// backup providers, retrying against the next one whenever the current
// attempt fails with a retryable error (rate limit, auth, timeout, server
// error). Failover decisions are delegated to internal/models.FailoverError
// classification so every backend shares the same retry policy.
type FallbackProvider struct {
	primary agent.LLMProvider
	byName  map[string]agent.LLMProvider
	config  *fallback.FallbackConfig
}

// NewFallbackProvider builds a provider that tries primary first, then each
// of backups in order, on a retryable error.
func NewFallbackProvider(primary agent.LLMProvider, backups ...agent.LLMProvider) *FallbackProvider {
	byName := map[string]agent.LLMProvider{strings.ToLower(primary.Name()): primary}
	refs := make([]string, 0, len(backups))
	for _, p := range backups {
		byName[strings.ToLower(p.Name())] = p
		refs = append(refs, fallback.ModelKey(p.Name(), firstModelID(p)))
	}
	return &FallbackProvider{
		primary: primary,
		byName:  byName,
		config: &fallback.FallbackConfig{
			PrimaryProvider: primary.Name(),
			PrimaryModel:    firstModelID(primary),
			Fallbacks:       refs,
		},
	}
}

func firstModelID(p agent.LLMProvider) string {
	models := p.Models()
	if len(models) == 0 {
		return ""
	}
	return models[0].ID
}

// Name reports the primary provider's name; failover is transparent to
// callers.
func (f *FallbackProvider) Name() string { return f.primary.Name() }

// Models returns the primary provider's catalog.
func (f *FallbackProvider) Models() []agent.Model { return f.primary.Models() }

// SupportsTools reports the primary provider's tool support.
func (f *FallbackProvider) SupportsTools() bool { return f.primary.SupportsTools() }

// Complete runs req against the primary provider, failing over to the next
// configured backend when the error is retryable.
func (f *FallbackProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	result, err := fallback.RunWithModelFallback(ctx, f.config,
		func(ctx context.Context, providerName, modelID string) (<-chan *agent.CompletionChunk, error) {
			p, ok := f.byName[strings.ToLower(providerName)]
			if !ok {
				return nil, fmt.Errorf("fallback provider %q not configured", providerName)
			}
			subReq := *req
			if modelID != "" {
				subReq.Model = modelID
			}
			return p.Complete(ctx, &subReq)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}
