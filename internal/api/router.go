package api

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/erazemk/povratna/internal/model"
)

// Config holds the router's dependencies.
type Config struct {
	DB            *sqlx.DB
	JWTSecret     string
	Logger        *zap.Logger
	ConfirmPolicy model.ConfirmPolicy
	// Health defaults to pinging DB.
	Health Checker
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	db, logger := cfg.DB, cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	checker := cfg.Health
	if checker == nil {
		checker = pingChecker{db}
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: cfg.JWTSecret, Log: logger}
	usersHandler := &UsersHandler{DB: db, Log: logger}
	locationsHandler := &LocationsHandler{DB: db, Log: logger}
	consumablesHandler := &ConsumablesHandler{DB: db, Log: logger}
	transfersHandler := &TransfersHandler{DB: db, Log: logger, ConfirmPolicy: cfg.ConfirmPolicy}
	balancesHandler := &BalancesHandler{DB: db, Log: logger}
	healthHandler := &HealthHandler{Checker: checker}

	authMW := AuthMiddleware(cfg.JWTSecret, db, logger)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login and health.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/health", healthHandler.Get)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Locations: read (all roles), write (manager+).
	mux.Handle("GET /api/locations", authMW(http.HandlerFunc(locationsHandler.List)))
	mux.Handle("POST /api/locations", authMW(requireManager(http.HandlerFunc(locationsHandler.Create))))
	mux.Handle("GET /api/locations/{id}", authMW(http.HandlerFunc(locationsHandler.Get)))
	mux.Handle("PUT /api/locations/{id}", authMW(requireManager(http.HandlerFunc(locationsHandler.Update))))
	mux.Handle("GET /api/locations/{id}/history", authMW(http.HandlerFunc(locationsHandler.History)))

	// Consumables: read (all roles), write (manager+).
	mux.Handle("GET /api/consumables", authMW(http.HandlerFunc(consumablesHandler.List)))
	mux.Handle("POST /api/consumables", authMW(requireManager(http.HandlerFunc(consumablesHandler.Create))))
	mux.Handle("GET /api/consumables/{id}", authMW(http.HandlerFunc(consumablesHandler.Get)))
	mux.Handle("PUT /api/consumables/{id}", authMW(requireManager(http.HandlerFunc(consumablesHandler.Update))))
	mux.Handle("PUT /api/consumables/{id}/image", authMW(requireManager(http.HandlerFunc(consumablesHandler.UploadImage))))
	mux.Handle("GET /api/consumables/{id}/image", authMW(http.HandlerFunc(consumablesHandler.GetImage)))

	// Transfers: create (all roles), review (manager+), confirm (admin).
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/approve", authMW(requireManager(http.HandlerFunc(transfersHandler.Approve))))
	mux.Handle("POST /api/transfers/{id}/void", authMW(requireManager(http.HandlerFunc(transfersHandler.Void))))
	mux.Handle("POST /api/transfers/{id}/confirm", authMW(requireAdmin(http.HandlerFunc(transfersHandler.Confirm))))
	mux.Handle("POST /api/transfers/{id}/adjustments", authMW(requireManager(http.HandlerFunc(transfersHandler.CreateAdjustment))))

	// Balances (all roles).
	mux.Handle("GET /api/balances", authMW(http.HandlerFunc(balancesHandler.List)))

	return mux
}
