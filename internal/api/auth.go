package api

import (
	"encoding/json"
	"net/http"

	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/auth"
)

// adminSubject is the subject of every issued admin token.
const adminSubject = "admin"

// tokenRequest is the request body for POST /api/v1/admin/token.
type tokenRequest struct {
	Secret string `json:"secret"`
}

// tokenResponse is the response body for POST /api/v1/admin/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleIssueToken exchanges the configured admin secret for a JWT.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if !auth.CheckAdminSecret(req.Secret, s.secCfg.AdminSecret) {
		s.logger.Warn("admin token request rejected", "remote_addr", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	token, expires, err := auth.GenerateAdminToken(adminSubject, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		s.logger.Error("issuing admin token failed", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.audit.Record(r.Context(), audit.ActionLogin, audit.EntityToken, "", adminSubject, nil)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(expires.Sub(s.now()).Seconds()),
	})
}
