package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

type addUserRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// userResponse is one identity mapped to a hub.
type userResponse struct {
	UserID      string `json:"userId"`
	Email       string `json:"email,omitempty"`
	MappedAt    string `json:"mappedAt,omitempty"`
	LastSeen    string `json:"lastSeen,omitempty"`
	AlexaLinked bool   `json:"alexaLinked"`
}

func toUserResponse(i identity.Identity) userResponse {
	u := userResponse{
		UserID:      i.ID,
		Email:       i.Email,
		AlexaLinked: i.AlexaLinked(),
	}
	if !i.MappedAt.IsZero() {
		u.MappedAt = database.FormatTime(i.MappedAt)
	}
	if !i.LastSeen.IsZero() {
		u.LastSeen = database.FormatTime(i.LastSeen)
	}
	return u
}

// handleListHubUsers lists the identities mapped to a hub.
func (s *Server) handleListHubUsers(w http.ResponseWriter, r *http.Request) {
	h, ok := s.loadHub(w, r)
	if !ok {
		return
	}

	ids, err := s.identities.ListByHub(r.Context(), h.ID)
	if err != nil {
		s.logger.Error("list hub users failed", "hub_id", h.ID, "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	users := make([]userResponse, 0, len(ids))
	for _, i := range ids {
		users = append(users, toUserResponse(i))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hubId": h.ID, "users": users})
}

// handleAddHubUser maps an identity to the hub and makes it the owner.
// A previous mapping of the same identity is replaced.
func (s *Server) handleAddHubUser(w http.ResponseWriter, r *http.Request) {
	h, ok := s.loadHub(w, r)
	if !ok {
		return
	}

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}

	ctx := r.Context()
	if err := s.identities.PutMapping(ctx, req.UserID, h.ID, req.Email, s.now()); err != nil {
		if errors.Is(err, identity.ErrInvalidIdentity) {
			writeBadRequest(w, "invalid user")
			return
		}
		s.logger.Error("map user failed", "hub_id", h.ID, "user_id", req.UserID, "error", err)
		writeInternalError(w, "failed to add user")
		return
	}

	if err := s.hubs.SetOwner(ctx, h.ID, req.UserID); err != nil {
		s.logger.Warn("setting hub owner failed", "hub_id", h.ID, "user_id", req.UserID, "error", err)
	}

	s.logger.Info("user mapped to hub", "hub_id", h.ID, "user_id", req.UserID)
	s.audit.Record(ctx, audit.ActionMap, audit.EntityIdentity, req.UserID, actor(ctx), map[string]any{
		"hubId": h.ID,
		"email": req.Email,
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "userId": req.UserID, "hubId": h.ID})
}

// handleRemoveUser deletes an identity mapping. Unknown identities succeed.
func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	ctx := r.Context()

	if err := s.identities.Delete(ctx, userID); err != nil {
		s.logger.Error("remove user failed", "user_id", userID, "error", err)
		writeInternalError(w, "failed to remove user")
		return
	}

	s.logger.Info("user removed", "user_id", userID)
	s.audit.Record(ctx, audit.ActionUnmap, audit.EntityIdentity, userID, actor(ctx), nil)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "userId": userID, "status": "removed"})
}
