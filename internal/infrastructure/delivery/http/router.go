// Package httprouter serves the health, session inspection and metrics endpoints.
package httprouter

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"bulkdl/internal/entity"
	"bulkdl/internal/infrastructure/delivery/http/middleware"
	"bulkdl/internal/infrastructure/delivery/http/request"
	"bulkdl/internal/infrastructure/delivery/http/response"
	"bulkdl/internal/observability"
)

// Sessions exposes the conversation state of requesters.
type Sessions interface {
	Get(requesterID int64) entity.SessionState
	Len() int
}

// Router is a ServeMux wrapped in the global middleware chain.
type Router struct {
	*http.ServeMux
	log         *slog.Logger
	globalChain []func(http.Handler) http.Handler
	sessions    Sessions
}

// New builds the router. metrics may be nil, in which case /metrics is not served.
func New(log *slog.Logger, sessions Sessions, metrics *observability.Metrics) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		sessions: sessions,
	}

	r.Use(
		middleware.Recoverer(r.log),
		middleware.RequestID,
		middleware.Logger(r.log),
		middleware.Metrics(metrics),
	)

	r.HandleFunc("GET /v1/readyz", r.Readyz)
	r.HandleFunc("GET /v1/sessions", r.SessionCount)
	r.HandleFunc("GET /v1/sessions/{id}", r.Session)

	if metrics != nil {
		r.Handle("GET /metrics", observability.Handler())
	}

	return r
}

// Use appends middlewares to the global chain.
func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	r.globalChain = append(r.globalChain, middleware...)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, mw := range slices.Backward(r.globalChain) {
		h = mw(h)
	}

	h.ServeHTTP(w, req)
}

// Readyz reports that the process is serving.
func (r *Router) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SessionCount returns the number of known requesters.
func (r *Router) SessionCount(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, "sessions", map[string]int{"count": r.sessions.Len()}, nil)
}

type sessionView struct {
	RequesterID int64     `json:"requester_id"`
	Phase       string    `json:"phase"`
	PendingURLs int       `json:"pending_urls"`
	Format      string    `json:"format,omitempty"`
	Delivery    string    `json:"delivery,omitempty"`
	Credentials bool      `json:"credentials"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Session returns the conversation state of one requester.
// URLs and credential paths are not exposed.
func (r *Router) Session(w http.ResponseWriter, req *http.Request) {
	id, err := request.RequesterID(req)
	if err != nil {
		response.BadRequest(w, "invalid requester id", err)

		return
	}

	st := r.sessions.Get(id)

	response.OK(w, "session", sessionView{
		RequesterID: id,
		Phase:       string(st.Phase),
		PendingURLs: len(st.PendingURLs),
		Format:      string(st.PendingFormat),
		Delivery:    string(st.PendingDelivery),
		Credentials: st.PendingCredentialsPath != "",
		UpdatedAt:   st.UpdatedAt,
	}, nil)
}
