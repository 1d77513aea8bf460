package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	entityrepo "github.com/foomo/entityrepo/pkg"
	"github.com/foomo/entityrepo/pkg/connection"
	"github.com/foomo/entityrepo/pkg/logger"
	"github.com/foomo/entityrepo/pkg/repository"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// monitored is the connection view the HTTP surface needs.
type monitored interface {
	connection.EngineSource
	State() connection.State
}

type handler struct {
	l    *zap.Logger
	conn monitored
}

func newRouter(l *zap.Logger, conn monitored, gatherer prometheus.Gatherer) http.Handler {
	h := &handler{l: l, conn: conn}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1/{index}", func(r chi.Router) {
		r.Get("/documents/{id}", h.getDocument)
		r.Get("/_count", h.count)
		r.Get("/_page", h.page)
	})
	return r
}

// requestLogger scopes the logger to the request id.
func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := h.l.With(zap.String("requestID", chiMiddleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(logger.ContextWithLogger(r.Context(), l)))
	})
}

func (h *handler) repository(r *http.Request) *repository.Repository[Document] {
	return repository.New[Document](logger.FromContext(r.Context()), h.conn, chi.URLParam(r, "index"))
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	state := h.conn.State()
	status := http.StatusOK
	if state != connection.StateHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"engine": h.conn.Engine().Name(),
		"state":  state.String(),
	})
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id := entityrepo.DocumentID(chi.URLParam(r, "id"))
	doc, err := h.repository(r).Lookup(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handler) count(w http.ResponseWriter, r *http.Request) {
	count, err := h.repository(r).Count(r.Context(), parseFilter(r.URL.Query().Get("filter")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := intParam(query.Get("page"), 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid page"))
		return
	}
	size, err := intParam(query.Get("size"), repository.DefaultPageSize)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid size"))
		return
	}
	sort, err := entityrepo.ParseSort(query.Get("sort"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	result, err := h.repository(r).Paginate(r.Context(), page, size, parseFilter(query.Get("filter")), sort...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entityrepo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("document not found"))
	case errors.Is(err, entityrepo.ErrUnsupportedFilter), errors.Is(err, entityrepo.ErrUnalignedWindow):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		logger.FromContext(r.Context()).Error("engine request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, errorBody("engine request failed"))
	}
}

func intParam(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
