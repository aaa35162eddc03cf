package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/create_user", apiHandler.CreateUserHandler)
		r.Post("/login_user", apiHandler.LoginUserHandler)
		r.Post("/love_calculator", apiHandler.LoveCalculatorHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Profile routes
			r.Get("/get_user", apiHandler.GetUserHandler)
			r.Post("/update_user", apiHandler.UpdateUserHandler)

			// Chat routes
			r.Post("/generate", apiHandler.GenerateHandler)
			r.Get("/responses", apiHandler.ResponsesHandler)
			r.Get("/chat_history", apiHandler.ResponsesHandler)
			r.Post("/create_chat_window", apiHandler.CreateChatWindowHandler)
			r.Get("/get_chat_window", apiHandler.GetChatWindowsHandler)
			r.Delete("/delete_chat_window/{chatID}", apiHandler.DeleteChatWindowHandler)

			// Tinder utility routes
			r.Post("/tinder_replies", apiHandler.TinderRepliesHandler)
			r.Post("/generate_tinder_description", apiHandler.GenerateTinderDescriptionHandler)
			r.Post("/update_tinder_description", apiHandler.UpdateTinderDescriptionHandler)
		})
	})

	return r
}
