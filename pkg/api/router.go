package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/scribehub/scribe/pkg/api/handlers"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/auth"
	"github.com/scribehub/scribe/pkg/chat"
	"github.com/scribehub/scribe/pkg/ledger"
	"github.com/scribehub/scribe/pkg/metrics"
	"github.com/scribehub/scribe/pkg/objectstore"
	"github.com/scribehub/scribe/pkg/store"
	"github.com/scribehub/scribe/pkg/tags"
	"github.com/scribehub/scribe/pkg/upload"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Users         *auth.UserService
	Upload        *upload.Service
	Store         *store.GORMStore
	Objects       objectstore.Store
	Search        handlers.Searcher
	IndexCleaner  handlers.IndexCleaner
	Resolver      *tags.Resolver
	TagService    *tags.Service
	Ledger        *ledger.Ledger
	Chat          *chat.Handler
	Metrics       *metrics.Metrics
	Health        map[string]handlers.Pinger
	PresignExpiry time.Duration
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Middleware order: request id, real ip, request logging, panic recovery.
// No blanket timeout is applied; each external client carries its own
// deadline and the chat stream is open-ended.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler(deps.Health)
	userHandler := handlers.NewUserHandler(deps.Users)
	uploadHandler := handlers.NewUploadHandler(deps.Upload, deps.Store)
	documentHandler := handlers.NewDocumentHandler(
		deps.Store, deps.Objects, deps.IndexCleaner, deps.Resolver, deps.Ledger, deps.PresignExpiry)
	searchHandler := handlers.NewSearchHandler(deps.Search)
	adminHandler := handlers.NewAdminHandler(deps.Store, deps.TagService)

	guard := middleware.NewGuard(deps.Store)

	// Health and scrape endpoints, unauthenticated.
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public surface.
		r.Post("/users/register", userHandler.Register)
		r.Post("/users/login", userHandler.Login)
		r.Post("/auth/refreshToken", userHandler.Refresh)
		r.Get("/upload/supported-types", uploadHandler.SupportedTypes)

		// Authenticated surface behind the authorization guard.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Users))
			r.Use(guard.Authorize)

			r.Post("/users/logout", userHandler.Logout)
			r.Post("/users/logout-all", userHandler.LogoutAll)

			r.Post("/upload/chunk", counted(deps.Metrics.RecordChunkUploaded, uploadHandler.Chunk))
			r.Get("/upload/status", uploadHandler.Status)
			r.Post("/upload/merge", counted(deps.Metrics.RecordMerge, uploadHandler.Merge))

			r.Delete("/documents/{fingerprint}", func(w http.ResponseWriter, req *http.Request) {
				documentHandler.Delete(w, req, chi.URLParam(req, "fingerprint"))
			})
			r.Get("/documents/uploads", documentHandler.Uploads)
			r.Get("/documents/accessible", documentHandler.Accessible)
			r.Get("/documents/download", documentHandler.Download)
			r.Get("/documents/preview", documentHandler.Preview)

			r.Get("/search/hybrid", counted(func() { deps.Metrics.RecordSearch("hybrid") }, searchHandler.Hybrid))

			// Admin surface.
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Post("/org-tags", adminHandler.CreateTag)
				r.Get("/org-tags", adminHandler.ListTags)
				r.Get("/org-tags/tree", adminHandler.TagTree)
				r.Put("/org-tags/{tagId}", func(w http.ResponseWriter, req *http.Request) {
					adminHandler.UpdateTag(w, req, chi.URLParam(req, "tagId"))
				})
				r.Delete("/org-tags/{tagId}", func(w http.ResponseWriter, req *http.Request) {
					adminHandler.DeleteTag(w, req, chi.URLParam(req, "tagId"))
				})
				r.Put("/users/{userId}/org-tags", func(w http.ResponseWriter, req *http.Request) {
					adminHandler.AssignUserTags(w, req, chi.URLParam(req, "userId"))
				})
				r.Get("/users/list", adminHandler.ListUsers)
			})
		})
	})

	// The chat stream authenticates through the handle in the path, not a
	// bearer header.
	if deps.Chat != nil {
		r.Get("/ws/chat/{handle}", func(w http.ResponseWriter, req *http.Request) {
			deps.Metrics.RecordChatSession()
			deps.Chat.ServeStream(w, req, chi.URLParam(req, "handle"))
		})
	}

	return r
}

// counted increments a counter when the wrapped handler answered with a
// success status.
func counted(inc func(), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		if ww.Status() < http.StatusBadRequest {
			inc()
		}
	}
}
