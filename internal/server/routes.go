package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Knowledge base
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler) // GET ?q=&limit=
	mux.HandleFunc("/api/chat", s.app.ChatHandler.ChatHandler)       // POST {messages}

	// Configuration status
	mux.HandleFunc("/api/config", s.app.ConfigHandler.GetConfig)

	// Indexing
	mux.HandleFunc("/api/index", s.app.IndexHandler.TriggerHandler)
	mux.HandleFunc("/api/index/status", s.app.IndexHandler.StatusHandler)

	// System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
