package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const clientColumns = `id, name, slug, industry, social_token, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var i Client
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Industry,
		&i.SocialToken,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listClients = `SELECT ` + clientColumns + ` FROM clients ORDER BY name`

func (q *Queries) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := q.db.Query(ctx, listClients)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Client
	for rows.Next() {
		i, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getClient = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

func (q *Queries) GetClient(ctx context.Context, id uuid.UUID) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, getClient, id))
}

const createClient = `INSERT INTO clients (id, name, slug, industry, social_token)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + clientColumns

type CreateClientParams struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Industry    pgtype.Text
	SocialToken pgtype.Text
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, createClient,
		arg.ID,
		arg.Name,
		arg.Slug,
		arg.Industry,
		arg.SocialToken,
	))
}

// social_token is only replaced when a new value is supplied
const updateClient = `UPDATE clients
SET name = $2, slug = $3, industry = $4,
    social_token = COALESCE($5, social_token),
    updated_at = now()
WHERE id = $1
RETURNING ` + clientColumns

type UpdateClientParams struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Industry    pgtype.Text
	SocialToken pgtype.Text
}

func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) (Client, error) {
	return scanClient(q.db.QueryRow(ctx, updateClient,
		arg.ID,
		arg.Name,
		arg.Slug,
		arg.Industry,
		arg.SocialToken,
	))
}

const deleteClient = `DELETE FROM clients WHERE id = $1`

func (q *Queries) DeleteClient(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteClient, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listAssets = `SELECT id, client_id, name, type, url, created_at FROM assets
WHERE ($1::uuid IS NULL OR client_id = $1)
ORDER BY created_at DESC`

func (q *Queries) ListAssets(ctx context.Context, clientID pgtype.UUID) ([]Asset, error) {
	rows, err := q.db.Query(ctx, listAssets, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Asset
	for rows.Next() {
		var i Asset
		if err := rows.Scan(
			&i.ID,
			&i.ClientID,
			&i.Name,
			&i.Type,
			&i.Url,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createAsset = `INSERT INTO assets (id, client_id, name, type, url)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, client_id, name, type, url, created_at`

type CreateAssetParams struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	Name     string
	Type     string
	Url      string
}

func (q *Queries) CreateAsset(ctx context.Context, arg CreateAssetParams) (Asset, error) {
	row := q.db.QueryRow(ctx, createAsset,
		arg.ID,
		arg.ClientID,
		arg.Name,
		arg.Type,
		arg.Url,
	)
	var i Asset
	err := row.Scan(
		&i.ID,
		&i.ClientID,
		&i.Name,
		&i.Type,
		&i.Url,
		&i.CreatedAt,
	)
	return i, err
}

const listCampaigns = `SELECT id, client_id, name, status, starts_at, created_at FROM campaigns
WHERE ($1::uuid IS NULL OR client_id = $1)
ORDER BY created_at DESC`

func (q *Queries) ListCampaigns(ctx context.Context, clientID pgtype.UUID) ([]Campaign, error) {
	rows, err := q.db.Query(ctx, listCampaigns, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Campaign
	for rows.Next() {
		var i Campaign
		if err := rows.Scan(
			&i.ID,
			&i.ClientID,
			&i.Name,
			&i.Status,
			&i.StartsAt,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
