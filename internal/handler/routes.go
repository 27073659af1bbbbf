package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the API on r. When protect is non-nil the
// transaction routes require it to pass.
func (h *Handler) RegisterRoutes(r *mux.Router, protect mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/itsme", h.ItsMe).Methods(http.MethodGet)
	authRouter.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	authRouter.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	txRouter := r.PathPrefix("/api/transactions").Subrouter()
	if protect != nil {
		txRouter.Use(protect)
	}
	txRouter.HandleFunc("", h.ListTransactions).Methods(http.MethodGet)
	txRouter.HandleFunc("", h.CreateTransaction).Methods(http.MethodPost)
	txRouter.HandleFunc("", h.DeleteTransaction).Methods(http.MethodDelete)
	txRouter.HandleFunc("/summary", h.Summary).Methods(http.MethodGet)
	txRouter.HandleFunc("/print", h.PrintStatement).Methods(http.MethodGet)
}
