package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tom2tomtomtom/airwave/cache"
)

// WarmTargets returns the cache targets for resources, scoped to clientID
// when it is set. An empty resources list warms everything.
func (s *Service) WarmTargets(resources []string, clientID *uuid.UUID) ([]cache.WarmTarget, error) {
	if len(resources) == 0 {
		resources = AllResources
	}

	var targets []cache.WarmTarget
	for _, r := range resources {
		switch r {
		case ResourceClients:
			targets = append(targets, cache.WarmTarget{Name: r, Key: ClientsKey(), Loader: loader(s.repo.ListClients)})
			if clientID != nil {
				id := *clientID
				targets = append(targets, cache.WarmTarget{
					Name:   r + "/" + id.String(),
					Key:    ClientKey(id),
					Loader: loader(func(ctx context.Context) (Client, error) { return s.repo.GetClient(ctx, id) }),
				})
			}
		case ResourceAssets:
			targets = append(targets, cache.WarmTarget{
				Name:   r,
				Key:    AssetsKey(clientID),
				Loader: loader(func(ctx context.Context) ([]Asset, error) { return s.repo.ListAssets(ctx, clientID) }),
			})
		case ResourceCampaigns:
			targets = append(targets, cache.WarmTarget{
				Name:   r,
				Key:    CampaignsKey(clientID),
				Loader: loader(func(ctx context.Context) ([]Campaign, error) { return s.repo.ListCampaigns(ctx, clientID) }),
			})
		default:
			return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, r)
		}
	}
	return targets, nil
}
