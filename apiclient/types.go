package apiclient

import "time"

// ClientInfo is a client as returned by the API
type ClientInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	Industry       string    `json:"industry,omitempty"`
	HasSocialToken bool      `json:"has_social_token"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type ClientInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Industry    string `json:"industry,omitempty"`
	SocialToken string `json:"social_token,omitempty"`
}

type Asset struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type AssetInput struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

type Campaign struct {
	ID        string     `json:"id"`
	ClientID  string     `json:"client_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// WarmResult is the server's answer to a warm request
type WarmResult struct {
	TaskID  string `json:"task_id,omitempty"`
	Queue   string `json:"queue,omitempty"`
	Targets int    `json:"targets"`
	Errors  int    `json:"errors,omitempty"`
}
