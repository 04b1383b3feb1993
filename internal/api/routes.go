package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/mappings", handler.GetMappings).Methods("GET")
	api.HandleFunc("/mappings/refresh", handler.RefreshMappings).Methods("POST")
	api.HandleFunc("/prices/{symbol}", handler.GetPriceRange).Methods("GET")
	api.HandleFunc("/gaps/{symbol}", handler.AnalyzeGaps).Methods("GET")
	api.HandleFunc("/gaps/{symbol}/status", handler.GetGapStatus).Methods("GET")
	api.HandleFunc("/sync", handler.Sync).Methods("POST")
	api.HandleFunc("/symbols/{symbol}", handler.DeleteSymbol).Methods("DELETE")

	return r
}
