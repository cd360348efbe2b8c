package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage behind the catalog. A nil clientID lists across
// all clients.
type Repository interface {
	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (Client, error)
	SocialToken(ctx context.Context, id uuid.UUID) (string, error)
	CreateClient(ctx context.Context, rec ClientRecord) (Client, error)
	UpdateClient(ctx context.Context, id uuid.UUID, rec ClientRecord) (Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error

	ListAssets(ctx context.Context, clientID *uuid.UUID) ([]Asset, error)
	CreateAsset(ctx context.Context, in AssetInput) (Asset, error)

	ListCampaigns(ctx context.Context, clientID *uuid.UUID) ([]Campaign, error)
}
