package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"montevecchio/internal/booking"
	"montevecchio/internal/metrics"
	"montevecchio/internal/models"
	"montevecchio/internal/photos"
)

// Household is the service behind the API.
type Household interface {
	Location() *time.Location
	State(ctx context.Context) (*models.GroupState, error)
	Cleaning(ctx context.Context) (*models.GroupState, error)
	RotateCleaning(ctx context.Context) (*models.GroupState, bool, error)
	BookLaundry(ctx context.Context, userName string, start time.Time) (*models.LaundryReservation, error)
	BookShower(ctx context.Context, userName string, start time.Time, acceptConflict bool) (*models.ShowerBooking, error)
	ClaimZone(ctx context.Context, zone models.Zone, userName, photoRef string, confirmed bool) (booking.ClaimResult, error)
	AddShoppingItem(ctx context.Context, label string) (*models.ShoppingItem, error)
	SetShoppingItemChecked(ctx context.Context, id string, checked bool) (*models.ShoppingItem, error)
	RemoveShoppingItem(ctx context.Context, id string) (*models.ShoppingItem, error)
	PostBoardMessage(ctx context.Context, author, text string) (*models.BoardMessage, error)
}

// PhotoUploads hands out presigned photo upload URLs.
type PhotoUploads interface {
	PresignUpload(ctx context.Context, userName, contentType string) (*photos.Upload, error)
}

type Options struct {
	APIKey          string
	AllowedOrigins  []string
	RateLimitPerSec float64
	RateLimitBurst  int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a reverse proxy that sets those headers.
	TrustProxy bool
	// Realtime serves GET /api/v1/ws when set.
	Realtime http.Handler
	// Photos enables POST /api/v1/photos/upload-url when set.
	Photos PhotoUploads
}

// Server is the household HTTP API.
type Server struct {
	svc     Household
	opts    Options
	limiter *ipLimiter
	logger  zerolog.Logger
	handler http.Handler
}

func NewServer(svc Household, opts Options, logger *zerolog.Logger) *Server {
	s := &Server{
		svc:     svc,
		opts:    opts,
		limiter: newIPLimiter(opts.RateLimitPerSec, opts.RateLimitBurst),
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Use(countRequests)

		r.Get("/state", s.handleState)

		r.Get("/laundry", s.handleListLaundry)
		r.Post("/laundry", s.handleBookLaundry)

		r.Get("/showers", s.handleListShowers)
		r.Post("/showers", s.handleBookShower)

		r.Get("/cleaning", s.handleCleaning)
		r.Get("/cleaning/report.xlsx", s.handleCleaningReport)
		r.Post("/cleaning/rotate", s.handleRotateCleaning)
		r.Post("/cleaning/{zone}", s.handleClaimZone)

		r.Get("/shopping", s.handleListShopping)
		r.Post("/shopping", s.handleAddShopping)
		r.Patch("/shopping/{id}", s.handleCheckShopping)
		r.Delete("/shopping/{id}", s.handleRemoveShopping)

		r.Get("/board", s.handleBoard)
		r.Post("/board", s.handlePostBoard)

		r.Post("/photos/upload-url", s.handlePhotoUploadURL)

		if s.opts.Realtime != nil {
			r.Get("/ws", s.opts.Realtime.ServeHTTP)
		}
	})

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:         300,
	}).Handler(r)
}

// requireAPIKey checks the shared key when one is configured. Websocket
// clients, which cannot set headers, may pass it as ?api_key=.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		metrics.IncHTTPRequest(r.Method + " " + pattern)
	})
}
