package orchestrator

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

// Router настраивает маршруты API под префиксом prefix (например /api)
func (s *Server) Router(prefix string) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// куки отправляются клиентом вместе с токеном, поэтому credentials разрешены
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api := r.PathPrefix(prefix).Subrouter()

	// Публичные маршруты
	api.HandleFunc("/register", s.HandleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.HandleLogin).Methods(http.MethodPost)
	api.HandleFunc("/token-info", s.HandleTokenInfo).Methods(http.MethodGet)

	// Защищенные маршруты
	protected := api.NewRoute().Subrouter()
	protected.Use(s.tokens.AuthMiddleware)
	protected.HandleFunc("/calculate", s.HandleCalculate).Methods(http.MethodPost)
	protected.HandleFunc("/expressions", s.HandleGetExpressions).Methods(http.MethodGet)
	protected.HandleFunc("/expression/{id}", s.HandleGetExpression).Methods(http.MethodGet)
	protected.HandleFunc("/expression/{id}/tasks", s.HandleGetTasks).Methods(http.MethodGet)
	protected.HandleFunc("/expression/{id}/recalculate", s.HandleRecalculate).Methods(http.MethodPost)

	return r
}
