package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nftmint/internal/mint"
	"nftmint/internal/session"
	"nftmint/internal/wallet"
)

const headerIdempotencyKey = "X-Idempotency-Key"

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView(s.app.Session.Snapshot()))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Connect(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, wallet.ErrNoProvider):
			status = http.StatusServiceUnavailable
		case errors.Is(err, wallet.ErrUserRejected):
			status = http.StatusForbidden
		case errors.Is(err, session.ErrConnectAbandoned):
			status = http.StatusConflict
		}
		writeJSON(w, status, s.sessionView(snap))
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(snap))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.app.Session.Disconnect()
	writeJSON(w, http.StatusOK, s.sessionView(s.app.Session.Snapshot()))
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))

	s.mintMu.Lock()
	defer s.mintMu.Unlock()

	if key != "" {
		existing, err := s.app.Store.FindByKey(ctx, key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup idempotency key: "+err.Error())
			return
		}
		if existing != nil && s.now().Sub(existing.CreatedAt) < s.app.Config.Service.IdempotencyTTL {
			if job, ok := s.app.Mints.Job(existing.RequestID); ok {
				writeJSON(w, http.StatusOK, s.jobFromLive(job))
				return
			}
			writeJSON(w, http.StatusOK, s.jobFromRecord(*existing))
			return
		}
	}

	job, err := s.app.Mints.Mint(ctx, key)
	switch {
	case errors.Is(err, session.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, mint.ErrMintInFlight):
		writeJSON(w, http.StatusConflict, struct {
			Error string  `json:"error"`
			Job   jobView `json:"job"`
		}{err.Error(), s.jobFromLive(job)})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.jobFromLive(job))
}

func (s *Server) handleCurrentMint(w http.ResponseWriter, r *http.Request) {
	resp := currentMintView{SuccessVisible: s.app.Mints.SuccessVisible()}
	if job, ok := s.app.Mints.Current(); ok {
		v := s.jobFromLive(job)
		resp.Job = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if job, ok := s.app.Mints.Job(id); ok {
		writeJSON(w, http.StatusOK, s.jobFromLive(job))
		return
	}
	rec, err := s.app.Store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load job: "+err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "mint job not found")
		return
	}
	writeJSON(w, http.StatusOK, s.jobFromRecord(*rec))
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collectionView(s.app.Collection.Tokens()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	epoch := s.app.Collection.Epoch()
	snap := s.app.Session.Snapshot()
	if snap.State != session.Connected {
		writeError(w, http.StatusConflict, session.ErrNotConnected.Error())
		return
	}
	set, err := s.app.Collection.RefreshEpoch(r.Context(), epoch, snap.Handle, snap.Account)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.collectionView(set))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{Connected: true}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string `json:"status"`
		Session  string `json:"session"`
		RPC      any    `json:"rpc"`
		Database any    `json:"database"`
	}{
		Status:   status,
		Session:  s.app.Session.Snapshot().State.String(),
		RPC:      rpcInfo,
		Database: dbInfo,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
