package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appledger "github.com/settlement-hub/settlement-hub/internal/application/ledger"
	"github.com/settlement-hub/settlement-hub/internal/application/nonce"
	"github.com/settlement-hub/settlement-hub/internal/application/orchestrator"
	"github.com/settlement-hub/settlement-hub/internal/application/replay"
	"github.com/settlement-hub/settlement-hub/internal/domain/protocol"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/resilience"
	"github.com/settlement-hub/settlement-hub/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	orchestratorSvc *orchestrator.Orchestrator
	ledgerEngine    *appledger.Engine
	replayGuard     *replay.Guard
	nonceManager    *nonce.Manager
	breaker         *resilience.Breaker
	limiter         *resilience.RateLimiter
	events          *sse.Hub
}

func NewServer(
	orchestratorSvc *orchestrator.Orchestrator,
	ledgerEngine *appledger.Engine,
	replayGuard *replay.Guard,
	nonceManager *nonce.Manager,
	breaker *resilience.Breaker,
	limiter *resilience.RateLimiter,
	events *sse.Hub,
) *Server {
	return &Server{
		orchestratorSvc: orchestratorSvc,
		ledgerEngine:    ledgerEngine,
		replayGuard:     replayGuard,
		nonceManager:    nonceManager,
		breaker:         breaker,
		limiter:         limiter,
		events:          events,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/mandates/execute", s.executeMandateChain)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/integrity", s.verifyIntegrity)
			r.Get("/{sequence}", s.getLedgerEntry)
			r.Get("/{sequence}/proof", s.getMerkleProof)
		})

		r.Get("/events", s.streamEvents)
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondRejection(w http.ResponseWriter, rej *protocol.Rejection) {
	respondJSON(w, rej.Reason.HTTPStatus(), rej)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
