package handler

import (
	"net/http"
)

// HealthCheckHandler reports liveness with 200 OK.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadyHandler returns 503 until at least one symbol run has finished.
func ReadyHandler(runs ResultProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(runs.Latest()) == 0 {
			http.Error(w, "no finished runs yet", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	}
}
