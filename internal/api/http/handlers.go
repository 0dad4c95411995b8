package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/settlement-hub/settlement-hub/internal/application/orchestrator"
	"github.com/settlement-hub/settlement-hub/internal/domain/protocol"
)

func (s *Server) executeMandateChain(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		respondRejection(w, protocol.Reject(protocol.ReasonMalformedEnvelope, "Idempotency-Key header is required"))
		return
	}

	var req orchestrator.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		respondRejection(w, protocol.Reject(protocol.ReasonMalformedMandate, "request body is not a valid mandate chain"))
		return
	}

	receipt, rej := s.orchestratorSvc.VerifyAndExecute(r.Context(), req, idempotencyKey)
	if rej != nil {
		respondRejection(w, rej)
		return
	}
	if !receipt.Replayed {
		s.events.Broadcast("settlement.receipt", receipt)
	}
	respondJSON(w, http.StatusOK, receipt)
}

func (s *Server) getLedgerEntry(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sequence"})
		return
	}
	entry, err := s.ledgerEngine.GetEntry(r.Context(), sequence)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger read failed"})
		return
	}
	if entry == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) getMerkleProof(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sequence"})
		return
	}
	proof, err := s.ledgerEngine.GetProof(r.Context(), sequence)
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "proof unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, proof)
}

func (s *Server) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledgerEngine.VerifyChainIntegrity(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "integrity walk failed"})
		return
	}
	if !report.Intact {
		s.events.Broadcast("ledger.integrity_fault", report)
	}
	respondJSON(w, http.StatusOK, report)
}

// streamEvents serves the server-sent event stream of settlement receipts and
// integrity faults.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	events, cancel := s.events.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
			flusher.Flush()
		}
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":                "ok",
		"replay_guard_degraded": s.replayGuard.Degraded(),
		"nonce_probe_only":      s.nonceManager.Degraded(),
		"breaker_state":         s.breaker.State(),
		"ledger_halted":         s.ledgerEngine.Halted(),
	})
}

func parseSequence(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "sequence"), 10, 64)
}
