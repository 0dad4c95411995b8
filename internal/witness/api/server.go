package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/raft"

	"github.com/settlement-hub/settlement-hub/internal/witness/consensus"
	"github.com/settlement-hub/settlement-hub/internal/witness/protocol"
	"github.com/settlement-hub/settlement-hub/internal/witness/state"
)

// Server provides HTTP endpoints for the witness runtime.
type Server struct {
	node *consensus.Node
}

func NewServer(node *consensus.Node) *Server {
	return &Server{node: node}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/checkpoints", s.submitCheckpoint)
		r.Get("/heads", s.listHeads)
		r.Get("/heads/{ledgerId}", s.getHead)
		r.Get("/heads/{ledgerId}/forks", s.listForks)
		r.Get("/stats", s.stateStats)
		r.Get("/cluster/status", s.clusterStatus)
		r.Post("/cluster/join", s.clusterJoin)
		r.Post("/cluster/remove", s.clusterRemove)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"nodeId":   s.node.ID(),
		"state":    s.node.State(),
		"leader":   s.node.LeaderAddr(),
		"leaderId": s.node.LeaderNodeID(),
	})
}

func (s *Server) submitCheckpoint(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		respondNotLeader(w, s.node, "submit to leader")
		return
	}
	var cp protocol.Checkpoint
	if err := decodeBody(r, &cp); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.ApplyCheckpoint(r.Context(), cp); err != nil {
		if isLeadershipErr(err) {
			respondNotLeader(w, s.node, err.Error())
			return
		}
		if errors.Is(err, state.ErrForkDetected) {
			respondError(w, http.StatusConflict, "FORK_DETECTED", err.Error(), nil)
			return
		}
		respondError(w, http.StatusBadRequest, "CHECKPOINT_REJECTED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"checkpoint_id": cp.CheckpointID,
		"ledger_id":     cp.LedgerID,
		"sequence":      cp.Sequence,
		"status":        "WITNESSED",
	})
}

func (s *Server) getHead(w http.ResponseWriter, r *http.Request) {
	ledgerID := strings.TrimSpace(chi.URLParam(r, "ledgerId"))
	head, ok := s.node.Machine().GetHead(ledgerID)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "ledger not witnessed", nil)
		return
	}
	respondJSON(w, http.StatusOK, head)
}

func (s *Server) listHeads(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"heads": s.node.Machine().ListHeads(),
	})
}

func (s *Server) listForks(w http.ResponseWriter, r *http.Request) {
	ledgerID := strings.TrimSpace(chi.URLParam(r, "ledgerId"))
	if _, ok := s.node.Machine().GetHead(ledgerID); !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "ledger not witnessed", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ledger_id": ledgerID,
		"forks":     s.node.Machine().ListForks(ledgerID),
	})
}

func (s *Server) stateStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.node.Machine().StateStats())
}

func (s *Server) clusterStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"node_id":    s.node.ID(),
		"raft_addr":  s.node.RaftAddr(),
		"state":      s.node.State(),
		"leader":     s.node.LeaderAddr(),
		"leader_id":  s.node.LeaderNodeID(),
		"is_leader":  s.node.IsLeader(),
		"raft_stats": s.node.Stats(),
	})
}

type clusterJoinRequest struct {
	NodeID   string `json:"node_id"`
	RaftAddr string `json:"raft_addr"`
}

func (s *Server) clusterJoin(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		respondNotLeader(w, s.node, "submit to leader")
		return
	}
	var req clusterJoinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.AddVoter(r.Context(), req.NodeID, req.RaftAddr); err != nil {
		if isLeadershipErr(err) {
			respondNotLeader(w, s.node, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "JOIN_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

type clusterRemoveRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) clusterRemove(w http.ResponseWriter, r *http.Request) {
	if !s.node.IsLeader() {
		respondNotLeader(w, s.node, "submit to leader")
		return
	}
	var req clusterRemoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	if err := s.node.RemoveServer(r.Context(), req.NodeID); err != nil {
		if isLeadershipErr(err) {
			respondNotLeader(w, s.node, err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "REMOVE_FAILED", err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "OK"})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	out := map[string]any{
		"error":   code,
		"message": message,
	}
	for k, v := range extra {
		out[k] = v
	}
	respondJSON(w, status, out)
}

func respondNotLeader(w http.ResponseWriter, node *consensus.Node, message string) {
	respondError(w, http.StatusConflict, "NOT_LEADER", message, map[string]any{
		"leader":    node.LeaderAddr(),
		"leader_id": node.LeaderNodeID(),
	})
}

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}
