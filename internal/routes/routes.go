package routes

import (
	"accountmanager/internal/handlers"
	"accountmanager/internal/middleware"
	"net/http"

	"github.com/gorilla/mux"
)

func InitRoutes(router *mux.Router, passwordHandler *handlers.PasswordHandler) {
	// Recoverer внутри Logging: паника попадает в журнал доступа с request_id
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.Recoverer)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	api.HandleFunc("/password/change", passwordHandler.Change).Methods(http.MethodPost)
	api.HandleFunc("/password/strength", passwordHandler.Strength).Methods(http.MethodPost)

	api.HandleFunc("/password/reset", passwordHandler.RequestReset).Methods(http.MethodPost)
	api.HandleFunc("/password/reset/{slug:[0-9a-f]+}", passwordHandler.CheckReset).Methods(http.MethodGet)
	api.HandleFunc("/password/reset/{slug:[0-9a-f]+}", passwordHandler.Redeem).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/reset", passwordHandler.AdminReset).Methods(http.MethodPost)
}
