package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.Health}
	authn := AuthHandler{Accounts: deps.Accounts, Sessions: deps.Sessions}
	me := AccountHandler{Accounts: deps.Accounts, MaxUploadBytes: deps.MaxUploadBytes}
	relations := RelationshipHandler{Relationships: deps.Relationships}

	protect := deps.Access.Middleware(authFailure)
	secured := func(h http.HandlerFunc) http.Handler { return protect(h) }

	mux.HandleFunc("/healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	mux.HandleFunc("/api/v1/auth/register", authn.Register)
	mux.HandleFunc("/api/v1/auth/login", authn.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authn.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authn.Logout)

	mux.Handle("/api/v1/me", secured(me.Me))
	mux.Handle("/api/v1/me/picture", secured(me.Picture))

	mux.Handle("/api/v1/friends", secured(relations.Friends))
	mux.Handle("/api/v1/friends/requests", secured(relations.Requests))
	mux.Handle("/api/v1/friends/requests/respond", secured(relations.Respond))
	mux.Handle("/api/v1/friends/unfriend", secured(relations.Unfriend))
	mux.Handle("/api/v1/blocks", secured(relations.Blocks))
	mux.Handle("/api/v1/blocks/remove", secured(relations.Unblock))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts       AccountService
	Sessions       SessionManager
	Relationships  RelationshipEngine
	Access         Authenticator
	Health         Pinger
	Metrics        http.Handler
	MaxUploadBytes int64
}
