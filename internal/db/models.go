package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Client struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Industry    pgtype.Text
	SocialToken pgtype.Text
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Asset struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Name      string
	Type      string
	Url       string
	CreatedAt time.Time
}

type Campaign struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	Name      string
	Status    string
	StartsAt  pgtype.Timestamptz
	CreatedAt time.Time
}
