// Package api is the HTTP surface: the /websocket upgrade that hands
// connections to the session loop, and the REST collaborator that manages
// durable rooms and memberships.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelasqz/multichat-back/internal/auth"
	"github.com/avelasqz/multichat-back/internal/cache"
	"github.com/avelasqz/multichat-back/internal/chat"
	"github.com/avelasqz/multichat-back/internal/config"
	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/identity"
	"github.com/avelasqz/multichat-back/internal/middleware"
	"github.com/avelasqz/multichat-back/internal/registry"
	"github.com/avelasqz/multichat-back/internal/utils"
)

type Router struct {
	mux      *http.ServeMux
	db       *db.Database
	cache    *cache.Cache
	resolver *identity.Resolver
	jwtMgr   *auth.JWTManager
	chatSvc  *chat.Service
	rooms    *registry.Rooms
	presence *registry.Presence
	cfg      *config.Config
	logger   *utils.Logger
}

// Deps collects everything the router serves.
type Deps struct {
	DB       *db.Database
	Cache    *cache.Cache
	Resolver *identity.Resolver
	JWTMgr   *auth.JWTManager
	ChatSvc  *chat.Service
	Rooms    *registry.Rooms
	Presence *registry.Presence
	Config   *config.Config
	Logger   *utils.Logger
}

// NewRouter creates the HTTP router with configured handlers and middleware.
func NewRouter(deps Deps) http.Handler {
	r := &Router{
		mux:      http.NewServeMux(),
		db:       deps.DB,
		cache:    deps.Cache,
		resolver: deps.Resolver,
		jwtMgr:   deps.JWTMgr,
		chatSvc:  deps.ChatSvc,
		rooms:    deps.Rooms,
		presence: deps.Presence,
		cfg:      deps.Config,
		logger:   deps.Logger,
	}

	rateLimiter := middleware.NewRateLimiter(deps.Cache.GetClient())

	// Public endpoints
	r.mux.HandleFunc("POST /auth/session", r.SessionHandler)
	r.mux.HandleFunc("/healthz", r.HealthzHandler)
	r.mux.Handle("/metrics", promhttp.Handler())

	// The socket authenticates in-band with its first LOGIN frame.
	r.mux.Handle("/websocket", http.HandlerFunc(r.WebSocketHandler))

	// Protected REST endpoints for durable room management
	protect := func(h http.HandlerFunc) http.Handler {
		return r.AuthMiddleware(rateLimiter.Middleware(h))
	}
	r.mux.Handle("GET /rooms", protect(r.GetRoomsHandler))
	r.mux.Handle("POST /rooms", protect(r.CreateRoomHandler))
	r.mux.Handle("GET /rooms/{id}", protect(r.GetRoomHandler))
	r.mux.Handle("PUT /rooms/{id}", protect(r.UpdateRoomHandler))
	r.mux.Handle("GET /rooms/{id}/members", protect(r.GetMembersHandler))
	r.mux.Handle("POST /rooms/{id}/members", protect(r.AddMembersHandler))
	r.mux.Handle("DELETE /rooms/{id}/members/{userID}", protect(r.RemoveMemberHandler))

	// Request ID first, tracing second, so spans carry the request ID's
	// context.
	handler := middleware.TracingMiddleware(r.mux)
	return middleware.RequestIDMiddleware(handler)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
