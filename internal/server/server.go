package server

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sendrec/clipintake/internal/docs"
	"github.com/sendrec/clipintake/internal/generate"
	"github.com/sendrec/clipintake/internal/geoip"
	"github.com/sendrec/clipintake/internal/httputil"
	"github.com/sendrec/clipintake/internal/intake"
	"github.com/sendrec/clipintake/internal/offers"
	"github.com/sendrec/clipintake/internal/ratelimit"
)

type Config struct {
	Intake   *intake.Handler
	Offers   *offers.Handler
	Generate *generate.Handler
	GeoIP    *geoip.Resolver
	WebFS    fs.FS
	BaseURL  string
	// Limits is published at /api/limits for the page.
	Limits map[string]int64
}

type Server struct {
	router chi.Router
	cfg    Config

	uploadLimiter   *ratelimit.Limiter
	generateLimiter *ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(slogMiddleware(cfg.GeoIP))
	r.Use(securityHeaders(SecurityConfig{BaseURL: cfg.BaseURL}))

	s := &Server{
		router:          r,
		cfg:             cfg,
		uploadLimiter:   ratelimit.NewLimiter(2, 10),
		generateLimiter: ratelimit.NewLimiter(0.5, 5),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter eviction loops.
func (s *Server) Close() {
	s.uploadLimiter.Close()
	s.generateLimiter.Close()
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)
	s.router.Get("/api/docs", docs.HandleDocs)
	s.router.Get("/api/docs/openapi.yaml", docs.HandleOpenAPI)

	if h := s.cfg.Intake; h != nil {
		s.router.Route("/api/clips", func(r chi.Router) {
			r.Get("/", h.List)
			r.Get("/{slot}", h.Status)
			r.Delete("/{slot}", h.Release)
			r.With(s.uploadLimiter.Middleware).Post("/{slot}", h.Submit)
		})
		s.router.Get("/api/previews/{token}", h.Preview)
	}

	if h := s.cfg.Offers; h != nil {
		s.router.Get("/api/offers", h.List)
	}

	if h := s.cfg.Generate; h != nil {
		s.router.Route("/api/generate", func(r chi.Router) {
			r.Get("/", h.Status)
			r.With(s.generateLimiter.Middleware).Post("/", h.Start)
		})
	}

	if s.cfg.WebFS != nil {
		s.router.NotFound(newPageServer(s.cfg.WebFS).ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	limits := s.cfg.Limits
	if limits == nil {
		limits = map[string]int64{}
	}
	httputil.WriteJSON(w, http.StatusOK, limits)
}
