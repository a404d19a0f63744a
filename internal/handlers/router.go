package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request.
func RequestLogger(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ev := log.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}

// NewRouter wires every route onto a gorilla/mux router.
func NewRouter(fees *FeeHandler, auth *AuthHandler, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger(log))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/auth/login", auth.Login).Methods("POST")
	admin := router.PathPrefix("/auth/staff").Subrouter()
	admin.Use(auth.RequireRole(models.RoleAdmin))
	admin.HandleFunc("", auth.CreateStaff).Methods("POST")
	admin.HandleFunc("", auth.ListStaff).Methods("GET")

	fee := router.PathPrefix("/fee").Subrouter()
	fee.Use(auth.RequireRole(models.RoleAdmin, models.RoleAccountant))
	fee.HandleFunc("", fees.Overview).Methods("GET")
	fee.HandleFunc("/search", fees.Search).Methods("GET")
	fee.HandleFunc("/structure", fees.Structure).Methods("GET")
	fee.HandleFunc("/collect/{studentId}", fees.Collect).Methods("POST")
	fee.HandleFunc("/edit/{studentId}", fees.Edit).Methods("PUT")
	fee.HandleFunc("/student/{studentId}", fees.ListByStudent).Methods("GET")
	fee.HandleFunc("/sync/{studentId}", fees.Sync).Methods("POST")

	return router
}
