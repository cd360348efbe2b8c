// Package catalog serves clients, assets and campaigns through the response
// cache. Reads are cached per request key and writes invalidate the resource
// they touch.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Resource names double as cache invalidation patterns
const (
	ResourceClients   = "clients"
	ResourceAssets    = "assets"
	ResourceCampaigns = "campaigns"
)

// AllResources lists every cacheable resource
var AllResources = []string{ResourceClients, ResourceAssets, ResourceCampaigns}

type Client struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Industry       string    `json:"industry,omitempty"`
	HasSocialToken bool      `json:"has_social_token"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClientInput is the create/update body. SocialToken is write-only.
type ClientInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Industry    string `json:"industry,omitempty"`
	SocialToken string `json:"social_token,omitempty"`
}

// ClientRecord is what a Repository persists; the social token is already sealed
type ClientRecord struct {
	Name        string
	Slug        string
	Industry    string
	SealedToken string
}

type Asset struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type AssetInput struct {
	ClientID uuid.UUID `json:"client_id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	URL      string    `json:"url"`
}

type Campaign struct {
	ID        uuid.UUID  `json:"id"`
	ClientID  uuid.UUID  `json:"client_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

var assetTypes = map[string]bool{"image": true, "video": true, "audio": true, "document": true, "copy": true}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its words with dashes
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Normalize trims fields, fills in the slug and validates
func (in ClientInput) Normalize() (ClientInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Industry = strings.TrimSpace(in.Industry)
	in.SocialToken = strings.TrimSpace(in.SocialToken)
	if in.Name == "" {
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Slug == "" {
		in.Slug = in.Name
	}
	in.Slug = Slugify(in.Slug)
	if in.Slug == "" {
		return in, fmt.Errorf("%w: slug must contain letters or digits", ErrInvalidInput)
	}
	return in, nil
}

func (in AssetInput) Normalize() (AssetInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.URL = strings.TrimSpace(in.URL)
	switch {
	case in.ClientID == uuid.Nil:
		return in, fmt.Errorf("%w: client_id is required", ErrInvalidInput)
	case in.Name == "":
		return in, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !assetTypes[in.Type]:
		return in, fmt.Errorf("%w: unknown asset type %q", ErrInvalidInput, in.Type)
	case in.URL == "":
		return in, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	return in, nil
}
