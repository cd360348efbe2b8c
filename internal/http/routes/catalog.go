package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tom2tomtomtom/airwave/internal/catalog"
)

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, hit, err := s.Catalog.ListClients(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCached(w, r, clients, hit)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	c, hit, err := s.Catalog.GetClient(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCached(w, r, c, hit)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var in catalog.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := s.Catalog.CreateClient(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, c)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	var in catalog.ClientInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := s.Catalog.UpdateClient(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	if err := s.Catalog.DeleteClient(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSocialToken hands the decrypted social token to publishing tools.
// Client payloads never carry it.
func (s *Server) handleSocialToken(w http.ResponseWriter, r *http.Request) {
	id, ok := clientIDParam(w, r)
	if !ok {
		return
	}
	token, err := s.Catalog.RevealSocialToken(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, http.StatusOK, map[string]string{"social_token": token})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDQuery(w, r)
	if !ok {
		return
	}
	assets, hit, err := s.Catalog.ListAssets(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCached(w, r, assets, hit)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var in catalog.AssetInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := s.Catalog.CreateAsset(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, a)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDQuery(w, r)
	if !ok {
		return
	}
	campaigns, hit, err := s.Catalog.ListCampaigns(r.Context(), clientID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeCached(w, r, campaigns, hit)
}

func clientIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid client ID")
		return uuid.Nil, false
	}
	return id, true
}

// clientIDQuery parses the optional client_id filter
func clientIDQuery(w http.ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("client_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid client_id")
		return nil, false
	}
	return &id, true
}
