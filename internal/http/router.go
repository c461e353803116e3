package httpserver

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/auth"
	"github.com/hiyari/incident-reports-back/internal/http/handlers"
	"github.com/hiyari/incident-reports-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *zap.Logger
	Identity       auth.Resolver
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the handler chain. ctx bounds background work started by
// middleware.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", deps.API.NotFound)
	mux.HandleFunc("/health", deps.API.Health)
	mux.HandleFunc("/ai/generate", deps.API.AIGenerate)
	mux.HandleFunc("/ai/status", deps.API.AIStatus)
	mux.HandleFunc("/validate", deps.API.Validate)
	mux.HandleFunc("/reports", deps.API.Reports)
	mux.HandleFunc("/reports/export", deps.API.ExportReports)
	mux.HandleFunc("/reports/", deps.API.ReportByID)
	mux.HandleFunc("/stats/categories", deps.API.CategoryStats)
	mux.HandleFunc("/me/level", deps.API.MyLevel)

	handler := http.Handler(mux)
	handler = middleware.Identity(deps.Identity)(handler)
	handler = middleware.RateLimit(ctx, middleware.RateLimitConfig{
		RPS:         deps.RateLimitRPS,
		Burst:       deps.RateLimitBurst,
		ExemptPaths: []string{"/health"},
	})(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Recover(deps.Logger)(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
