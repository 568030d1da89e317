package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/adsync-ai/adsync/internal/pkg/httpclient"
)

// Whisper transcribes creative audio through a self-hosted whisper service.
type Whisper struct {
	client  *httpclient.PooledClient
	baseURL string
}

func NewWhisper(client *httpclient.PooledClient, baseURL string) *Whisper {
	return &Whisper{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Whisper) Name() string {
	return "whisper"
}

func (p *Whisper) Execute(ctx context.Context, req Request) (*Result, error) {
	payload := map[string]interface{}{
		"scope":   req.Scope,
		"auth_id": req.AuthID,
		"args":    req.Args,
		"options": req.Options,
	}

	return doJSON(ctx, p.client, fmt.Sprintf("%s/transcribe", p.baseURL), payload)
}
