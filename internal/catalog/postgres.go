package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tom2tomtomtom/airwave/internal/db"
)

// PGRepository implements Repository on the db queries
type PGRepository struct {
	q *db.Queries
}

func NewPGRepository(q *db.Queries) *PGRepository {
	return &PGRepository{q: q}
}

func (r *PGRepository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.q.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]Client, 0, len(rows))
	for _, c := range rows {
		out = append(out, clientFromRow(c))
	}
	return out, nil
}

func (r *PGRepository) GetClient(ctx context.Context, id uuid.UUID) (Client, error) {
	c, err := r.q.GetClient(ctx, id)
	if err != nil {
		return Client{}, notFound(err, "get client")
	}
	return clientFromRow(c), nil
}

func (r *PGRepository) SocialToken(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := r.q.GetClient(ctx, id)
	if err != nil {
		return "", notFound(err, "get client")
	}
	return c.SocialToken.String, nil
}

func (r *PGRepository) CreateClient(ctx context.Context, rec ClientRecord) (Client, error) {
	c, err := r.q.CreateClient(ctx, db.CreateClientParams{
		ID:          uuid.New(),
		Name:        rec.Name,
		Slug:        rec.Slug,
		Industry:    text(rec.Industry),
		SocialToken: text(rec.SealedToken),
	})
	if err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	return clientFromRow(c), nil
}

func (r *PGRepository) UpdateClient(ctx context.Context, id uuid.UUID, rec ClientRecord) (Client, error) {
	c, err := r.q.UpdateClient(ctx, db.UpdateClientParams{
		ID:          id,
		Name:        rec.Name,
		Slug:        rec.Slug,
		Industry:    text(rec.Industry),
		SocialToken: text(rec.SealedToken),
	})
	if err != nil {
		return Client{}, notFound(err, "update client")
	}
	return clientFromRow(c), nil
}

func (r *PGRepository) DeleteClient(ctx context.Context, id uuid.UUID) error {
	n, err := r.q.DeleteClient(ctx, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListAssets(ctx context.Context, clientID *uuid.UUID) ([]Asset, error) {
	rows, err := r.q.ListAssets(ctx, optionalUUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	out := make([]Asset, 0, len(rows))
	for _, a := range rows {
		out = append(out, Asset{ID: a.ID, ClientID: a.ClientID, Name: a.Name, Type: a.Type, URL: a.Url, CreatedAt: a.CreatedAt})
	}
	return out, nil
}

func (r *PGRepository) CreateAsset(ctx context.Context, in AssetInput) (Asset, error) {
	a, err := r.q.CreateAsset(ctx, db.CreateAssetParams{
		ID:       uuid.New(),
		ClientID: in.ClientID,
		Name:     in.Name,
		Type:     in.Type,
		Url:      in.URL,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("create asset: %w", err)
	}
	return Asset{ID: a.ID, ClientID: a.ClientID, Name: a.Name, Type: a.Type, URL: a.Url, CreatedAt: a.CreatedAt}, nil
}

func (r *PGRepository) ListCampaigns(ctx context.Context, clientID *uuid.UUID) ([]Campaign, error) {
	rows, err := r.q.ListCampaigns(ctx, optionalUUID(clientID))
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	out := make([]Campaign, 0, len(rows))
	for _, c := range rows {
		cp := Campaign{ID: c.ID, ClientID: c.ClientID, Name: c.Name, Status: c.Status, CreatedAt: c.CreatedAt}
		if c.StartsAt.Valid {
			t := c.StartsAt.Time
			cp.StartsAt = &t
		}
		out = append(out, cp)
	}
	return out, nil
}

func clientFromRow(c db.Client) Client {
	return Client{
		ID:             c.ID,
		Name:           c.Name,
		Slug:           c.Slug,
		Industry:       c.Industry.String,
		HasSocialToken: c.SocialToken.Valid && c.SocialToken.String != "",
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func optionalUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(*id), Valid: true}
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Repository = (*PGRepository)(nil)
