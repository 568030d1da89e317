package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/adsync-ai/adsync/internal/pkg/httpclient"
)

// Kie generates and downloads AI video creatives through the kie.ai API.
type Kie struct {
	client  *httpclient.PooledClient
	baseURL string
}

func NewKie(client *httpclient.PooledClient, baseURL string) *Kie {
	return &Kie{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Kie) Name() string {
	return "kie"
}

func (p *Kie) Execute(ctx context.Context, req Request) (*Result, error) {
	endpoint := req.Action
	if i := strings.Index(endpoint, "."); i >= 0 {
		endpoint = endpoint[i+1:]
	}

	payload := map[string]interface{}{
		"scope":   req.Scope,
		"auth_id": req.AuthID,
		"args":    req.Args,
		"options": req.Options,
	}

	return doJSON(ctx, p.client, fmt.Sprintf("%s/api/%s", p.baseURL, strings.ReplaceAll(endpoint, ".", "/")), payload)
}
