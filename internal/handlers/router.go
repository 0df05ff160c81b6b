package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/auth"
	"github.com/ukydev/fleet-automation/internal/automation"
	"github.com/ukydev/fleet-automation/internal/db"
	"github.com/ukydev/fleet-automation/internal/middleware"
	"github.com/ukydev/fleet-automation/internal/models"
)

// RouterConfig carries what NewRouter needs.
type RouterConfig struct {
	Engine          *automation.Engine
	Auth            *auth.Service
	Users           db.UserCollection
	Logger          logrus.FieldLogger
	RateLimit       int
	RateLimitWindow time.Duration
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	fleet := NewFleetHandler(cfg.Engine, cfg.Logger)
	users := NewAuthHandler(cfg.Auth, cfg.Users, cfg.Logger)
	authMW := middleware.NewAuthMiddleware(cfg.Auth)
	limiter := middleware.NewRateLimitMiddleware()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(limiter.RateLimit(cfg.RateLimit, cfg.RateLimitWindow))

	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", users.Login)
		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)
			routes(r, fleet, users, authMW)
		})
	})

	return r
}

func routes(r chi.Router, fleet *FleetHandler, users *AuthHandler, authMW *middleware.AuthMiddleware) {
	can := authMW.RequirePermission

	r.Get("/auth/profile", users.GetProfile)
	r.Put("/auth/profile", users.UpdateProfile)
	r.Post("/auth/change-password", users.ChangePassword)
	r.Route("/users", func(r chi.Router) {
		r.Use(authMW.RequireRole(models.RoleAdmin))
		r.Post("/", users.Register)
		r.Get("/", users.ListUsers)
		r.Delete("/{id}", users.DeleteUser)
	})

	r.Route("/trips", func(r chi.Router) {
		r.With(can(models.ActionViewFleet)).Get("/", fleet.ListTrips)
		r.With(can(models.ActionViewFleet)).Get("/{id}", fleet.GetTrip)
		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManageTrips))
			r.Post("/validate", fleet.ValidateTrip)
			r.Post("/", fleet.CreateTrip)
			r.Patch("/{id}", fleet.UpdateTrip)
			r.Delete("/{id}", fleet.DeleteTrip)
			r.Post("/{id}/dispatch", fleet.DispatchTrip)
			r.Post("/{id}/complete", fleet.CompleteTrip)
			r.Post("/{id}/cancel", fleet.CancelTrip)
		})
	})

	r.Route("/maintenance", func(r chi.Router) {
		r.With(can(models.ActionViewFleet)).Get("/", fleet.ListMaintenance)
		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManageMaintenance))
			r.Post("/", fleet.OpenMaintenance)
			r.Post("/{id}/complete", fleet.CompleteMaintenance)
			r.Delete("/{id}", fleet.DeleteMaintenance)
		})
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Use(can(models.ActionViewFleet))
		r.Get("/", fleet.ListAlerts)
		r.Get("/feed", fleet.AlertFeed)
		r.With(can(models.ActionResolveAlerts)).Post("/{id}/resolve", fleet.ResolveAlert)
		r.With(can(models.ActionResolveAlerts)).Post("/{id}/unresolve", fleet.UnresolveAlert)
	})
	r.With(can(models.ActionRunChecks)).Post("/scans", fleet.RunScans)

	r.Route("/drivers", func(r chi.Router) {
		r.With(can(models.ActionViewFleet)).Get("/", fleet.ListDrivers)
		r.With(can(models.ActionViewFleet)).Get("/{id}", fleet.GetDriver)
		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManageDrivers))
			r.Post("/", fleet.RegisterDriver)
			r.Patch("/{id}", fleet.UpdateDriver)
			r.Post("/{id}/on-duty", fleet.DriverOnDuty)
			r.Post("/{id}/off-duty", fleet.DriverOffDuty)
			r.Post("/{id}/suspend", fleet.SuspendDriver)
			r.Post("/{id}/reinstate", fleet.ReinstateDriver)
			r.Delete("/{id}", fleet.DeleteDriver)
		})
		r.With(can(models.ActionBanDrivers)).Post("/{id}/ban", fleet.BanDriver)
	})

	r.Route("/vehicles", func(r chi.Router) {
		r.With(can(models.ActionViewFleet)).Get("/", fleet.ListVehicles)
		r.With(can(models.ActionViewFleet)).Get("/{id}", fleet.GetVehicle)
		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManageVehicles))
			r.Post("/", fleet.RegisterVehicle)
			r.Patch("/{id}", fleet.UpdateVehicle)
			r.Post("/{id}/retire", fleet.RetireVehicle)
			r.Delete("/{id}", fleet.DeleteVehicle)
		})
	})

	r.Route("/expenses", func(r chi.Router) {
		r.With(can(models.ActionViewFleet)).Get("/", fleet.ListExpenses)
		r.With(can(models.ActionViewFleet)).Get("/{id}", fleet.GetExpense)
		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManageExpenses))
			r.Post("/", fleet.RecordExpense)
			r.Delete("/{id}", fleet.DeleteExpense)
		})
	})
}
