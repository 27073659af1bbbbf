package middleware

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// CORS allows credentialed requests from the configured front-end origin.
func CORS(baseURL string) mux.MiddlewareFunc {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{baseURL}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)
	return mux.MiddlewareFunc(cors)
}
