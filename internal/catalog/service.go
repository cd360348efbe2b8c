package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/secrets"
)

// Service is the cached catalog
type Service struct {
	repo    Repository
	fetcher *cache.Fetcher
	box     *secrets.Box
	logger  zerolog.Logger
}

func NewService(repo Repository, fetcher *cache.Fetcher, box *secrets.Box, logger zerolog.Logger) *Service {
	return &Service{repo: repo, fetcher: fetcher, box: box, logger: logger}
}

// Fetcher returns the cache the service reads through
func (s *Service) Fetcher() *cache.Fetcher {
	return s.fetcher
}

// Keys used for cached reads. They match what an HTTP client would build for
// the same request so invalidation patterns line up.
func ClientsKey() string {
	return cache.RequestKey("GET", "/api/clients", nil)
}

func ClientKey(id uuid.UUID) string {
	return cache.RequestKey("GET", "/api/clients/"+id.String(), nil)
}

func AssetsKey(clientID *uuid.UUID) string {
	return cache.RequestKey("GET", "/api/assets", clientParam(clientID))
}

func CampaignsKey(clientID *uuid.UUID) string {
	return cache.RequestKey("GET", "/api/campaigns", clientParam(clientID))
}

func clientParam(id *uuid.UUID) map[string]string {
	if id == nil {
		return nil
	}
	return map[string]string{"client_id": id.String()}
}

func (s *Service) ListClients(ctx context.Context) ([]Client, bool, error) {
	return cached(ctx, s, ClientsKey(), s.repo.ListClients)
}

func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (Client, bool, error) {
	return cached(ctx, s, ClientKey(id), func(ctx context.Context) (Client, error) {
		return s.repo.GetClient(ctx, id)
	})
}

func (s *Service) ListAssets(ctx context.Context, clientID *uuid.UUID) ([]Asset, bool, error) {
	return cached(ctx, s, AssetsKey(clientID), func(ctx context.Context) ([]Asset, error) {
		return s.repo.ListAssets(ctx, clientID)
	})
}

func (s *Service) ListCampaigns(ctx context.Context, clientID *uuid.UUID) ([]Campaign, bool, error) {
	return cached(ctx, s, CampaignsKey(clientID), func(ctx context.Context) ([]Campaign, error) {
		return s.repo.ListCampaigns(ctx, clientID)
	})
}

func (s *Service) CreateClient(ctx context.Context, in ClientInput) (Client, error) {
	rec, err := s.record(in)
	if err != nil {
		return Client{}, err
	}
	c, err := s.repo.CreateClient(ctx, rec)
	if err != nil {
		return Client{}, err
	}
	s.invalidate(ctx, ResourceClients)
	return c, nil
}

func (s *Service) UpdateClient(ctx context.Context, id uuid.UUID, in ClientInput) (Client, error) {
	rec, err := s.record(in)
	if err != nil {
		return Client{}, err
	}
	c, err := s.repo.UpdateClient(ctx, id, rec)
	if err != nil {
		return Client{}, err
	}
	s.invalidate(ctx, ResourceClients)
	return c, nil
}

// DeleteClient removes a client and, through the cascade, its assets and
// campaigns, so all three resources are invalidated.
func (s *Service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteClient(ctx, id); err != nil {
		return err
	}
	for _, r := range AllResources {
		s.invalidate(ctx, r)
	}
	return nil
}

func (s *Service) CreateAsset(ctx context.Context, in AssetInput) (Asset, error) {
	in, err := in.Normalize()
	if err != nil {
		return Asset{}, err
	}
	a, err := s.repo.CreateAsset(ctx, in)
	if err != nil {
		return Asset{}, err
	}
	s.invalidate(ctx, ResourceAssets)
	return a, nil
}

// RevealSocialToken decrypts a client's stored social token. It returns an
// empty string when none is stored.
func (s *Service) RevealSocialToken(ctx context.Context, id uuid.UUID) (string, error) {
	sealed, err := s.repo.SocialToken(ctx, id)
	if err != nil || sealed == "" {
		return "", err
	}
	plain, err := s.box.OpenString(sealed)
	if err != nil {
		return "", fmt.Errorf("open social token for %s: %w", id, err)
	}
	return plain, nil
}

func (s *Service) record(in ClientInput) (ClientRecord, error) {
	in, err := in.Normalize()
	if err != nil {
		return ClientRecord{}, err
	}
	rec := ClientRecord{Name: in.Name, Slug: in.Slug, Industry: in.Industry}
	if in.SocialToken != "" {
		if s.box == nil {
			return ClientRecord{}, errors.New("social tokens cannot be stored without a secret key")
		}
		if rec.SealedToken, err = s.box.SealString(in.SocialToken); err != nil {
			return ClientRecord{}, fmt.Errorf("seal social token: %w", err)
		}
	}
	return rec, nil
}

// invalidate drops cached reads for resource. A failure only leaves entries
// to expire by TTL, so it is logged rather than returned.
func (s *Service) invalidate(ctx context.Context, resource string) {
	if _, err := s.fetcher.Invalidate(ctx, resource); err != nil {
		s.logger.Error().Err(err).Str("pattern", resource).Msg("cache invalidation failed")
	}
}

// loader adapts a typed repository read into a cache loader
func loader[T any](load func(context.Context) (T, error)) cache.Loader {
	return func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, bool, error) {
	var out T
	res, err := s.fetcher.Lookup(ctx, key, loader(load))
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(res.Value, &out); err != nil {
		return out, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, res.Hit, nil
}
