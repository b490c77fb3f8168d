// FilePath: api/resources/resources.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/itsatony/relayhub/internal/tokens"
	nuts "github.com/vaudience/go-nuts"
)

// Deps are the live collaborators the admin resources operate on.
// TokenRepo may be nil; assignments are then in-memory only.
type Deps struct {
	Registry  *session.Registry
	Tokens    *tokens.Manager
	TokenRepo tokens.Repository
}

// Resources holds all HTTP resource handlers
type Resources struct {
	Tokens   *TokenHandlers
	Sessions *SessionHandlers
}

// NewResources creates a new Resources instance
func NewResources(deps Deps) *Resources {
	return &Resources{
		Tokens:   &TokenHandlers{deps: deps},
		Sessions: &SessionHandlers{deps: deps},
	}
}

// HealthCheck reports liveness and build version.
func (r *Resources) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": nuts.GetVersion(),
	})
}

func respondWithError(w http.ResponseWriter, err *errors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
