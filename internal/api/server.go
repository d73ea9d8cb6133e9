// Package api exposes the kitchen service over HTTP. The same handler is
// served by the local web server and by the Lambda entrypoint.
package api

import (
	"net/http"

	"github.com/fpang/genai-kitchen/internal/auth"
	"github.com/fpang/genai-kitchen/internal/kitchen"
)

// Request body limits.
const (
	MaxGenerateBody = 40 << 20 // source + up to 4 references as base64
	MaxUploadBody   = 20 << 20
	maxLoginBody    = 4 << 10
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	svc   *kitchen.Service
	authn *auth.Authenticator
}

// NewServer creates a Server.
func NewServer(svc *kitchen.Service, authn *auth.Authenticator) *Server {
	return &Server{svc: svc, authn: authn}
}

// Handler returns the routed handler wrapped in logging, CORS and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	protected := map[string]http.HandlerFunc{
		"POST /api/generate/{operation}": s.handleGenerate,
		"POST /api/generate/cancel":      s.handleCancel,
		"POST /api/mask/edges":           s.handleEdgeMask,
		"GET /api/cache/stats":           s.handleCacheStats,
		"DELETE /api/cache":              s.handleCacheClear,
		"GET /api/workspace":             s.handleWorkspace,
		"GET /api/history/stats":         s.handleHistoryStats,
		"GET /api/history/export":        s.handleHistoryExport,
		"POST /api/history/undo":         s.handleUndo,
		"POST /api/history/redo":         s.handleRedo,
	}
	for pattern, h := range protected {
		mux.Handle(pattern, s.requireAuth(h))
	}

	return withLogging(withCORS(withMetrics(mux)))
}
