// Package api is the controller/dispatcher facade and its gorilla/mux
// HTTP router.
package api

import (
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Europeia/eurocore/internal/auth"
)

// NewRouter wires every dispatch/rmbpost/telegram route plus the ambient
// /healthz and /metrics endpoints, guarding each write route with the
// claim it requires.
func NewRouter(c *Controller, verifier *auth.Verifier, log *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(log))
	r.Use(requestIDMiddleware)

	r.HandleFunc("/healthz", c.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/metrics", c.Metrics).Methods(http.MethodGet)

	r.Handle("/dispatches", verifier.Require("dispatches.create", http.HandlerFunc(c.CreateDispatch))).Methods(http.MethodPost)
	r.Handle("/dispatches/{id}", verifier.Require("dispatches.edit", http.HandlerFunc(c.EditDispatch))).Methods(http.MethodPut)
	r.Handle("/dispatches/{id}", verifier.Require("dispatches.delete", http.HandlerFunc(c.RemoveDispatch))).Methods(http.MethodDelete)
	r.HandleFunc("/queue/dispatches/{id}", c.GetDispatchJob).Methods(http.MethodGet)

	r.Handle("/rmbposts", verifier.Require("rmbposts.create", http.HandlerFunc(c.CreateRmbPost))).Methods(http.MethodPost)
	r.HandleFunc("/queue/rmbposts/{id}", c.GetRmbPostJob).Methods(http.MethodGet)

	r.Handle("/telegrams", verifier.Require("telegrams.read", http.HandlerFunc(c.ListTelegrams))).Methods(http.MethodGet)
	r.Handle("/telegrams", verifier.Require("telegrams.create", http.HandlerFunc(c.CreateTelegram))).Methods(http.MethodPost)
	r.Handle("/telegrams", verifier.Require("telegrams.delete", http.HandlerFunc(c.DeleteTelegram))).Methods(http.MethodDelete)

	return r
}

// requestIDMiddleware stamps every request with a correlation id, carried
// as a response header for client-side log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewV4()
		if err == nil {
			w.Header().Set("X-Request-Id", id.String())
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts a panicking handler into a 500 rather than
// crashing the listener goroutine.
func recoveryMiddleware(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic handling request", zap.Any("recovered", rec), zap.String("path", r.URL.Path))
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
