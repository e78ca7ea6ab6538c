package api

import (
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/go-chi/chi/v5"

	"github.com/teamup/teamup/internal/api/handler"
	"github.com/teamup/teamup/internal/api/middleware"
	"github.com/teamup/teamup/internal/auth"
	"github.com/teamup/teamup/internal/metrics"
	"github.com/teamup/teamup/internal/notify"
	"github.com/teamup/teamup/internal/team"
)

// Manager is the lifecycle surface the HTTP layer drives.
type Manager interface {
	handler.TeamManager
	handler.MemberManager
	handler.InvitationManager
	handler.ApplicationManager
}

var _ notify.MembershipChecker = Manager(nil)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DB          handler.DBChecker
	Bus         handler.BusChecker // nil without a message bus
	Version     string
	OpenAPISpec []byte

	TeamRepo team.Repository
	Manager  Manager
	Accounts handler.AccountService
	Authn    middleware.Authenticator
	UserRepo auth.UserRepository

	Hub            *notify.Hub
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	r.Use(metrics.Middleware)

	if deps.DB != nil {
		healthHandler := handler.NewHealthHandler(deps.DB, deps.Bus, deps.Version)
		r.Get("/health", healthHandler.ServeHTTP)
	}
	r.Method("GET", "/metrics", metrics.Handler())

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec, deps.Version)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	if deps.Authn == nil || deps.Manager == nil {
		return r
	}

	users := handler.NewUserHandler(deps.Accounts, deps.UserRepo)
	teams := handler.NewTeamHandler(deps.TeamRepo, deps.Manager)
	members := handler.NewMemberHandler(deps.Manager)
	invitations := handler.NewInvitationHandler(deps.Manager)
	applications := handler.NewApplicationHandler(deps.Manager)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Authn))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Handler)
		}

		r.Post("/auth/register", users.Register)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireIdentity())

			r.Post("/auth/token", users.Token)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", users.Me)
				r.Delete("/me", users.RevokeMe)
				r.Get("/{id}", users.GetByID)
			})

			r.Route("/teams", func(r chi.Router) {
				r.Post("/", teams.Create)
				r.Get("/", teams.List)
				r.Get("/invitable", teams.Invitable)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", teams.GetByID)
					r.Patch("/", teams.Update)
					r.Delete("/", teams.Archive)
					r.Post("/transfer", teams.Transfer)

					r.Get("/members", teams.Members)
					r.Post("/members", members.Add)
					r.Delete("/members/{userId}", members.Remove)

					r.Post("/invitations", invitations.Create)
					r.Get("/invitations", invitations.ListSent)

					r.Post("/applications", applications.Apply)
					r.Get("/applications", applications.ListForTeam)
				})
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/received", invitations.ListReceived)
				r.Post("/{id}/respond", invitations.Respond)
				r.Post("/{id}/cancel", invitations.Cancel)
			})

			r.Route("/applications", func(r chi.Router) {
				r.Get("/mine", applications.ListMine)
				r.Post("/{id}/review", applications.Review)
				r.Delete("/{id}", applications.Withdraw)
			})

			if deps.Hub != nil {
				r.Method("GET", "/ws", handler.NewWSHandler(deps.Hub, deps.AllowedOrigins))
			}
		})
	})

	return r
}
