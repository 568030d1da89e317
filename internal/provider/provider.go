package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/pkg/config"
	"github.com/adsync-ai/adsync/internal/pkg/httpclient"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Request is one unit of provider work as carried by the task envelope.
type Request struct {
	Action  string
	Scope   string
	AuthID  string
	Args    models.JSON
	Options models.JSON
}

// Result is what a provider reports back for the run ledger.
type Result struct {
	Output models.JSON
	Items  int
}

// Provider executes sync actions against one external platform. Implementations
// must be safe for concurrent use; the worker calls them from many goroutines.
type Provider interface {
	Name() string
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Registry is an immutable name-to-provider map assembled at startup and
// injected into the worker.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// NewDefaultRegistry wires the built-in providers from config, sharing one
// pooled HTTP client so circuit breaker state is tracked per host.
func NewDefaultRegistry(cfg *config.ProvidersConfig) *Registry {
	client := httpclient.NewPooledClient(httpclient.DefaultConfig())
	return NewRegistry(
		NewTikTok(client, cfg.TikTokBaseURL),
		NewKie(client, cfg.KieBaseURL),
		NewWhisper(client, cfg.WhisperBaseURL),
	)
}
