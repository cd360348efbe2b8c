package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps the catalog in process memory. The API server uses
// it when no database is configured.
type MemoryRepository struct {
	mu        sync.RWMutex
	clients   map[uuid.UUID]Client
	tokens    map[uuid.UUID]string
	assets    []Asset
	campaigns []Campaign
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients: make(map[uuid.UUID]Client),
		tokens:  make(map[uuid.UUID]string),
		now:     time.Now,
	}
}

func (m *MemoryRepository) ListClients(context.Context) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) GetClient(_ context.Context, id uuid.UUID) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryRepository) SocialToken(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.clients[id]; !ok {
		return "", ErrNotFound
	}
	return m.tokens[id], nil
}

func (m *MemoryRepository) CreateClient(_ context.Context, rec ClientRecord) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSlug(uuid.Nil, rec.Slug); err != nil {
		return Client{}, err
	}
	now := m.now().UTC()
	c := Client{
		ID:             uuid.New(),
		Name:           rec.Name,
		Slug:           rec.Slug,
		Industry:       rec.Industry,
		HasSocialToken: rec.SealedToken != "",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.clients[c.ID] = c
	if rec.SealedToken != "" {
		m.tokens[c.ID] = rec.SealedToken
	}
	return c, nil
}

func (m *MemoryRepository) UpdateClient(_ context.Context, id uuid.UUID, rec ClientRecord) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return Client{}, ErrNotFound
	}
	if err := m.checkSlug(id, rec.Slug); err != nil {
		return Client{}, err
	}
	c.Name, c.Slug, c.Industry = rec.Name, rec.Slug, rec.Industry
	if rec.SealedToken != "" {
		m.tokens[id] = rec.SealedToken
		c.HasSocialToken = true
	}
	c.UpdatedAt = m.now().UTC()
	m.clients[id] = c
	return c, nil
}

func (m *MemoryRepository) DeleteClient(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return ErrNotFound
	}
	delete(m.clients, id)
	delete(m.tokens, id)

	assets := m.assets[:0]
	for _, a := range m.assets {
		if a.ClientID != id {
			assets = append(assets, a)
		}
	}
	m.assets = assets

	campaigns := m.campaigns[:0]
	for _, c := range m.campaigns {
		if c.ClientID != id {
			campaigns = append(campaigns, c)
		}
	}
	m.campaigns = campaigns
	return nil
}

func (m *MemoryRepository) ListAssets(_ context.Context, clientID *uuid.UUID) ([]Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Asset{}
	for _, a := range m.assets {
		if clientID == nil || a.ClientID == *clientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) CreateAsset(_ context.Context, in AssetInput) (Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[in.ClientID]; !ok {
		return Asset{}, fmt.Errorf("%w: unknown client %s", ErrInvalidInput, in.ClientID)
	}
	a := Asset{ID: uuid.New(), ClientID: in.ClientID, Name: in.Name, Type: in.Type, URL: in.URL, CreatedAt: m.now().UTC()}
	m.assets = append(m.assets, a)
	return a, nil
}

func (m *MemoryRepository) ListCampaigns(_ context.Context, clientID *uuid.UUID) ([]Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Campaign{}
	for _, c := range m.campaigns {
		if clientID == nil || c.ClientID == *clientID {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddCampaign seeds a campaign; campaigns have no write endpoint
func (m *MemoryRepository) AddCampaign(c Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now().UTC()
	}
	m.campaigns = append(m.campaigns, c)
}

func (m *MemoryRepository) checkSlug(self uuid.UUID, slug string) error {
	for id, c := range m.clients {
		if id != self && c.Slug == slug {
			return fmt.Errorf("%w: slug %q already in use", ErrInvalidInput, slug)
		}
	}
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
