package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aimine/bunshin/internal/store"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/bots", apiHandler.ListBotsHandler)

			// Chat routes
			r.Get("/chat/messages", apiHandler.ListChatMessagesHandler)
			r.Post("/chat/messages", apiHandler.PostChatMessageHandler)

			// Admin analysis routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.RequireRole(store.RoleAdmin))

				r.Get("/admin/employees", apiHandler.ListEmployeesHandler)
				r.Get("/admin/employees/{employeeID}/messages", apiHandler.EmployeeMessagesHandler)
				r.Post("/admin/employees/{employeeID}/summary", apiHandler.EmployeeSummaryHandler)
				r.Post("/admin/self-analysis", apiHandler.SelfAnalysisHandler)
				r.Post("/admin/feedback", apiHandler.FeedbackHandler)
			})

			// Developer provisioning routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.RequireRole(store.RoleDeveloper))

				r.Post("/admin/users/import", apiHandler.ImportUsersHandler)
			})
		})
	})

	return r
}
