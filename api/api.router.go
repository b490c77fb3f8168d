// FilePath: api/api.router.go
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/itsatony/relayhub/api/middleware"
	"github.com/itsatony/relayhub/api/resources"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.TokenMiddleware
	resources *resources.Resources
}

func NewRouter(deps resources.Deps, authConfig middleware.AuthConfig) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewTokenMiddleware(authConfig),
		resources: resources.NewResources(deps),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(r.auth.Authenticate)

	// Provisioning tokens
	tokens := protected.PathPrefix("/tokens").Subrouter()
	tokens.HandleFunc("", r.resources.Tokens.AssignToken).Methods(http.MethodPost)
	tokens.HandleFunc("", r.resources.Tokens.LookupToken).Methods(http.MethodGet)
	tokens.HandleFunc("/{token}", r.resources.Tokens.RevokeToken).Methods(http.MethodDelete)
	tokens.HandleFunc("/{token}/redirect", r.resources.Tokens.TokenRedirect).Methods(http.MethodGet)

	// Live sessions
	sessions := protected.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", r.resources.Sessions.ListSessions).Methods(http.MethodGet)
	sessions.HandleFunc("/{email}/devices", r.resources.Sessions.ListSessionDevices).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS and compression.
func (r *Router) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	return cors(handlers.CompressHandler(r.router))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
