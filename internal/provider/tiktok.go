package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/pkg/httpclient"
)

// TikTok syncs ad accounts, campaigns and creatives through the TikTok
// Business gateway.
type TikTok struct {
	client  *httpclient.PooledClient
	baseURL string
}

func NewTikTok(client *httpclient.PooledClient, baseURL string) *TikTok {
	return &TikTok{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *TikTok) Name() string {
	return "tiktok"
}

func (p *TikTok) Execute(ctx context.Context, req Request) (*Result, error) {
	// Action names are dotted (tiktok.sync_campaigns); the segment after the
	// provider prefix selects the gateway endpoint.
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

	return doJSON(ctx, p.client, fmt.Sprintf("%s/v1/%s", p.baseURL, strings.ReplaceAll(endpoint, ".", "/")), payload)
}

// doJSON posts a JSON payload and decodes the standard gateway response
// shape {"data": ..., "items_synced": n}.
func doJSON(ctx context.Context, client *httpclient.PooledClient, url string, payload map[string]interface{}) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.PostJSON(ctx, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Data        models.JSON `json:"data"`
		ItemsSynced int         `json:"items_synced"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	return &Result{Output: parsed.Data, Items: parsed.ItemsSynced}, nil
}
