package apiclient

import (
	"context"
	"net/http"

	"github.com/tom2tomtomtom/airwave/cache"
)

func (c *Client) ListClients(ctx context.Context) ([]ClientInfo, error) {
	var out []ClientInfo
	err := c.get(ctx, "/api/clients", nil, &out)
	return out, err
}

func (c *Client) GetClient(ctx context.Context, id string) (*ClientInfo, error) {
	var out ClientInfo
	if err := c.get(ctx, "/api/clients/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateClient(ctx context.Context, in ClientInput) (*ClientInfo, error) {
	var out ClientInfo
	if err := c.send(ctx, http.MethodPost, "/api/clients", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateClient(ctx context.Context, id string, in ClientInput) (*ClientInfo, error) {
	var out ClientInfo
	if err := c.send(ctx, http.MethodPut, "/api/clients/"+id, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClient deletes a client. The server removes the client's assets and
// campaigns with it, so their cached lists are dropped too.
func (c *Client) DeleteClient(ctx context.Context, id string) error {
	if err := c.send(ctx, http.MethodDelete, "/api/clients/"+id, nil, nil, nil); err != nil {
		return err
	}
	for _, p := range []string{"/api/assets", "/api/campaigns"} {
		pattern := cache.ResourcePattern(p)
		if _, err := c.fetcher.Invalidate(ctx, pattern); err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("local cache invalidation failed")
		}
	}
	return nil
}

// ListAssets lists assets, for one client when clientID is set
func (c *Client) ListAssets(ctx context.Context, clientID string) ([]Asset, error) {
	var out []Asset
	err := c.get(ctx, "/api/assets", map[string]string{"client_id": clientID}, &out)
	return out, err
}

func (c *Client) CreateAsset(ctx context.Context, in AssetInput) (*Asset, error) {
	var out Asset
	if err := c.send(ctx, http.MethodPost, "/api/assets", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCampaigns(ctx context.Context, clientID string) ([]Campaign, error) {
	var out []Campaign
	err := c.get(ctx, "/api/campaigns", map[string]string{"client_id": clientID}, &out)
	return out, err
}

// ServerCacheStats returns the server's cache statistics, never cached
func (c *Client) ServerCacheStats(ctx context.Context) (cache.Stats, error) {
	var out cache.Stats
	err := c.send(ctx, http.MethodGet, "/cache/stats", nil, nil, &out)
	return out, err
}

// InvalidateServerCache removes server cache entries whose key contains
// pattern and returns how many were removed
func (c *Client) InvalidateServerCache(ctx context.Context, pattern string) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.send(ctx, http.MethodPost, "/cache/invalidate", map[string]string{"pattern": pattern}, nil, &out)
	return out.Removed, err
}

// WarmServerCache asks the server to refresh resources (all when empty)
func (c *Client) WarmServerCache(ctx context.Context, resources []string, clientID string) (*WarmResult, error) {
	in := struct {
		Resources []string `json:"resources,omitempty"`
		ClientID  string   `json:"client_id,omitempty"`
	}{resources, clientID}
	var out WarmResult
	if err := c.send(ctx, http.MethodPost, "/cache/warm", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
