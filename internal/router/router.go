package router

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/planora/hub/internal/command"
	"github.com/planora/hub/internal/config"
	"github.com/planora/hub/internal/handler"
	"github.com/planora/hub/internal/middleware"
	"github.com/planora/hub/internal/resolver"
	"github.com/planora/hub/internal/schema"
	"github.com/planora/hub/internal/service"
)

// New builds the HTTP router.
// feed may be nil; if nil, it is created internally. Passing a
// pre-created instance allows main.go to also hand it to the sweeper.
func New(cfg *config.Config, db *sql.DB, reg *schema.Registry, feed *service.EventFeed) http.Handler {
	if feed == nil {
		feed = service.NewEventFeed()
	}

	var cache *resolver.Cache
	if cfg.RedisAddr != "" {
		cache = resolver.NewCache(cfg.RedisAddr, cfg.RedisPassword)
	}
	fk := resolver.New(db, reg, cache)

	authSvc := service.NewAuthService(db, cfg.TokenExpiryHours)
	commandSvc := command.New(db, reg, fk, feed)

	authH := handler.NewAuthHandler(authSvc)
	healthH := handler.NewHealthHandler("0.3.0")
	commandH := handler.NewCommandHandler(commandSvc)
	entitiesH := handler.NewEntitiesHandler(reg)
	eventsH := handler.NewEventsHandler(feed)

	requireAuth := middleware.AuthMiddleware(authSvc.ValidateToken)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.RequestID)

	// Public
	r.Get("/v1/health", healthH.Health)
	r.Get("/v1/version", healthH.Version)
	r.Get("/v1/auth/bootstrap/status", authH.BootstrapStatus)
	r.Post("/v1/auth/bootstrap/admin", authH.BootstrapAdmin)
	r.Post("/v1/auth/login", authH.Login)

	// Authenticated
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/v1/auth/logout", authH.Logout)
		r.Get("/v1/me", authH.Me)
		r.Post("/v1/me/team", authH.SwitchTeam)

		r.Get("/v1/entities", entitiesH.List)
		r.Post("/v1/command", commandH.Execute)
		r.Get("/v1/events", eventsH.Stream)
	})

	return r
}
