package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/auth"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

type createHubRequest struct {
	Label            string `json:"label"`
	MaxMsgsPerMinute int    `json:"maxMsgsPerMinute"`
	OwnerEmail       string `json:"ownerEmail"`
}

type createHubResponse struct {
	OK        bool   `json:"ok"`
	HubID     string `json:"hubId"`
	Secret    string `json:"secret"`
	CreatedAt string `json:"createdAt"`
}

// handleCreateHub provisions a hub. The plaintext secret is returned once.
func (s *Server) handleCreateHub(w http.ResponseWriter, r *http.Request) {
	var req createHubRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	if req.MaxMsgsPerMinute < 0 {
		writeBadRequest(w, "maxMsgsPerMinute must not be negative")
		return
	}

	creds, err := auth.GenerateHubCredentials()
	if err != nil {
		s.logger.Error("generating hub credentials failed", "error", err)
		writeInternalError(w, "failed to create hub")
		return
	}

	h := &hub.Hub{
		ID:               creds.HubID,
		SecretHash:       creds.SecretHash,
		Label:            req.Label,
		MaxMsgsPerMinute: req.MaxMsgsPerMinute,
		OwnerEmail:       req.OwnerEmail,
	}
	if err := s.hubs.Create(r.Context(), h); err != nil {
		if errors.Is(err, hub.ErrHubExists) {
			writeConflict(w, "hub already exists")
			return
		}
		s.logger.Error("create hub failed", "error", err)
		writeInternalError(w, "failed to create hub")
		return
	}

	s.logger.Info("hub created", "hub_id", h.ID, "label", h.Label)
	s.audit.Record(r.Context(), audit.ActionCreate, audit.EntityHub, h.ID, actor(r.Context()), map[string]any{
		"label":            h.Label,
		"maxMsgsPerMinute": h.MaxMsgsPerMinute,
		"ownerEmail":       h.OwnerEmail,
	})

	writeJSON(w, http.StatusCreated, createHubResponse{
		OK:        true,
		HubID:     h.ID,
		Secret:    creds.Secret,
		CreatedAt: database.FormatTime(h.CreatedAt),
	})
}

// handleListHubs returns every hub with its owner fields.
func (s *Server) handleListHubs(w http.ResponseWriter, r *http.Request) {
	hubs, err := s.hubs.List(r.Context())
	if err != nil {
		s.logger.Error("list hubs failed", "error", err)
		writeInternalError(w, "failed to list hubs")
		return
	}
	if hubs == nil {
		hubs = []hub.Hub{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hubs": hubs})
}

func (s *Server) handleGetHub(w http.ResponseWriter, r *http.Request) {
	h, ok := s.loadHub(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hub": h})
}

func (s *Server) handleUpdateHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch hub.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	updatedAt, err := s.hubs.Update(r.Context(), id, patch)
	switch {
	case errors.Is(err, hub.ErrInvalidHub):
		writeBadRequest(w, "maxMsgsPerMinute must not be negative")
		return
	case errors.Is(err, hub.ErrHubNotFound):
		writeNotFound(w, "hub not found")
		return
	case err != nil:
		s.logger.Error("update hub failed", "hub_id", id, "error", err)
		writeInternalError(w, "failed to update hub")
		return
	}

	details := map[string]any{}
	if patch.Label != nil {
		details["label"] = *patch.Label
	}
	if patch.MaxMsgsPerMinute != nil {
		details["maxMsgsPerMinute"] = *patch.MaxMsgsPerMinute
	}
	if patch.OwnerEmail != nil {
		details["ownerEmail"] = *patch.OwnerEmail
	}
	s.audit.Record(r.Context(), audit.ActionUpdate, audit.EntityHub, id, actor(r.Context()), details)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"hubId":     id,
		"updatedAt": database.FormatTime(updatedAt),
	})
}

// handleRevokeHub blocks future registrations. A live connection keeps
// its session until it expires or disconnects.
func (s *Server) handleRevokeHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updatedAt, err := s.hubs.SetStatus(r.Context(), id, hub.StatusRevoked)
	if err != nil {
		if errors.Is(err, hub.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		s.logger.Error("revoke hub failed", "hub_id", id, "error", err)
		writeInternalError(w, "failed to revoke hub")
		return
	}

	s.logger.Info("hub revoked", "hub_id", id)
	s.audit.Record(r.Context(), audit.ActionRevoke, audit.EntityHub, id, actor(r.Context()), nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"hubId":     id,
		"status":    hub.StatusRevoked,
		"updatedAt": database.FormatTime(updatedAt),
	})
}

// handleDeleteHub removes the hub row. Its devices are collected by the
// orphan sweep.
func (s *Server) handleDeleteHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.hubs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, hub.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		s.logger.Error("delete hub failed", "hub_id", id, "error", err)
		writeInternalError(w, "failed to delete hub")
		return
	}

	s.logger.Info("hub deleted", "hub_id", id)
	s.audit.Record(r.Context(), audit.ActionDelete, audit.EntityHub, id, actor(r.Context()), nil)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hubId": id, "status": "deleted"})
}

// loadHub fetches the {id} hub, writing the error response itself.
func (s *Server) loadHub(w http.ResponseWriter, r *http.Request) (*hub.Hub, bool) {
	id := chi.URLParam(r, "id")
	h, err := s.hubs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, hub.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return nil, false
		}
		s.logger.Error("get hub failed", "hub_id", id, "error", err)
		writeInternalError(w, "failed to get hub")
		return nil, false
	}
	return h, true
}
