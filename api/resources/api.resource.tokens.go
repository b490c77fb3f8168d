// FilePath: api/resources/api.resource.tokens.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	"github.com/itsatony/relayhub/internal/errors"
	nuts "github.com/vaudience/go-nuts"
)

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

// TokenHandlers encapsulates the provisioning-token HTTP handlers.
type TokenHandlers struct {
	deps Deps
}

type assignTokenRequest struct {
	Email    string `json:"email"`
	DashID   int    `json:"dashId"`
	DeviceID int    `json:"deviceId"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	DashID   int    `json:"dashId"`
	DeviceID int    `json:"deviceId"`
}

// AssignToken issues a fresh provisioning token for a device, revoking
// the device's previous token.
func (h *TokenHandlers) AssignToken(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req assignTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if req.Email == "" {
		respondWithError(w, errors.NewValidationError("email is required", nil).WithRequestID(requestID))
		return
	}

	token, err := h.deps.Tokens.Assign(req.Email, req.DashID, req.DeviceID)
	if err != nil {
		respondWithError(w, errors.NewInternalError("failed to assign token", err).WithRequestID(requestID))
		return
	}

	if h.deps.TokenRepo != nil {
		a, _ := h.deps.Tokens.Resolve(token)
		if err := h.deps.TokenRepo.Upsert(r.Context(), token, a); err != nil {
			nuts.L.Warnf("[TokenHandler] Token persist failed: %v", err)
		}
	}

	nuts.L.Infof("[TokenHandler] Assigned token for %s dash %d device %d", req.Email, req.DashID, req.DeviceID)
	respondWithJSON(w, http.StatusCreated, tokenResponse{
		Token:    token,
		Email:    req.Email,
		DashID:   req.DashID,
		DeviceID: req.DeviceID,
	})
}

type lookupTokenQuery struct {
	Email    string `schema:"email,required"`
	DashID   int    `schema:"dashId"`
	DeviceID int    `schema:"deviceId"`
}

// LookupToken returns the current token of a device, addressed by query
// parameters.
func (h *TokenHandlers) LookupToken(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var query lookupTokenQuery
	if err := queryDecoder.Decode(&query, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	token, ok := h.deps.Tokens.TokenFor(query.Email, query.DashID, query.DeviceID)
	if !ok {
		respondWithError(w, errors.NewNotFoundError("no token for device", nil).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{
		Token:    token,
		Email:    query.Email,
		DashID:   query.DashID,
		DeviceID: query.DeviceID,
	})
}

// RevokeToken invalidates a token. Already-authenticated connections
// stay up.
func (h *TokenHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	token := mux.Vars(r)["token"]

	if !h.deps.Tokens.Revoke(token) {
		respondWithError(w, errors.NewNotFoundError("unknown token", nil).WithRequestID(requestID))
		return
	}
	if h.deps.TokenRepo != nil {
		if err := h.deps.TokenRepo.Delete(r.Context(), token); err != nil {
			nuts.L.Warnf("[TokenHandler] Token delete failed: %v", err)
		}
	}

	nuts.L.Infof("[TokenHandler] Revoked token %s...", token[:min(8, len(token))])
	w.WriteHeader(http.StatusNoContent)
}

// TokenRedirect returns the host a migrated token should connect to.
func (h *TokenHandlers) TokenRedirect(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	token := mux.Vars(r)["token"]

	if h.deps.TokenRepo == nil {
		respondWithError(w, errors.NewNotFoundError("redirects not configured", nil).WithRequestID(requestID))
		return
	}
	host, err := h.deps.TokenRepo.RedirectHost(r.Context(), token)
	if err != nil {
		if errors.IsNotFound(err) {
			respondWithError(w, errors.NewNotFoundError("token has no redirect", err).WithRequestID(requestID))
			return
		}
		respondWithError(w, errors.NewInternalError("failed to look up redirect", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"host": host})
}
