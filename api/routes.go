package api

import (
	"github.com/gorilla/mux"

	"github.com/garnizeh/talentflow/internal/config"
	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/pkg/repository"
)

// Deps carries the wired components the handlers need.
type Deps struct {
	Repo      *repository.Repository
	Queue     *jobs.Repository
	Lifecycle *lifecycle.Manager
	Notifier  Notifier
	Rean      Reanalyzer
	Reloaders []SchemaReloader
}

func SetupRoutes(cfg *config.Config, version, buildTime string, deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(deps.Repo.Operators, cfg.JWTSecret, cfg.TokenDuration)
	leadsHandler := NewLeadsHandler(deps.Repo.Leads, deps.Lifecycle, deps.Notifier)
	postingsHandler := NewPostingsHandler(deps.Repo.Postings, deps.Repo.Analyses, deps.Rean)
	engineHandler := NewEngineHandler(deps.Repo.Schemas, deps.Repo.Templates, deps.Reloaders...)
	statsHandler := NewStatsHandler(deps.Repo.Leads, deps.Repo.Settings, deps.Repo.Actions, deps.Queue)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Lead endpoints
	apiV1.HandleFunc("/leads", leadsHandler.List).Methods("GET")
	apiV1.HandleFunc("/leads/{id}", leadsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/leads/{id}/reply", leadsHandler.Reply).Methods("POST")
	apiV1.HandleFunc("/leads/{id}/qualify", leadsHandler.Qualify).Methods("POST")
	apiV1.HandleFunc("/leads/{id}/close", leadsHandler.Close).Methods("POST")
	apiV1.HandleFunc("/leads/{id}/disqualify", leadsHandler.Disqualify).Methods("POST")
	apiV1.HandleFunc("/leads/{id}/notes", leadsHandler.AddNote).Methods("POST")

	// Posting endpoints
	apiV1.HandleFunc("/postings", postingsHandler.List).Methods("GET")
	apiV1.HandleFunc("/postings/{fingerprint}", postingsHandler.Get).Methods("GET")
	apiV1.HandleFunc("/postings/{fingerprint}/reanalyze", postingsHandler.Reanalyze).Methods("POST")

	// Engine schema and template endpoints
	apiV1.HandleFunc("/engine/reload", engineHandler.ReloadHandler).Methods("POST")
	apiV1.HandleFunc("/engine/schemas", engineHandler.ListSchemasHandler).Methods("GET")
	apiV1.HandleFunc("/engine/schemas", engineHandler.CreateOrUpdateSchemaHandler).Methods("POST")
	apiV1.HandleFunc("/engine/schema", engineHandler.GetSchemaHandler).Methods("GET")
	apiV1.HandleFunc("/engine/template", engineHandler.GetTemplateHandler).Methods("GET")

	// Operational endpoints
	apiV1.HandleFunc("/stats", statsHandler.Stats).Methods("GET")
	apiV1.HandleFunc("/actions", statsHandler.Actions).Methods("GET")

	return r
}
