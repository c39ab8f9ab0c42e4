package readapi

import (
	"net/http"
	"strconv"
)

const defaultMutationsLimit = 100
const maxMutationsLimit = 1000

func (s *Server) handlePerformance(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		Respond(w, http.StatusOK, map[string]any{"query_stats": []any{}})
		return
	}
	Respond(w, http.StatusOK, map[string]any{"query_stats": s.stats.All()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}

	if err := s.db.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = "error"
	} else {
		resp["database"] = "ok"
	}

	if s.maint != nil {
		resp["maintenance"] = s.maint.LastReport()
	}

	Respond(w, http.StatusOK, resp)
}

func (s *Server) handleMutations(w http.ResponseWriter, r *http.Request) {
	if s.mutations == nil {
		Respond(w, http.StatusOK, map[string]any{"mutations": []any{}})
		return
	}

	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "invalid_since", "since must be an integer mutation id")
			return
		}
		since = parsed
	}

	limit := defaultMutationsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxMutationsLimit {
		limit = maxMutationsLimit
	}

	mutations, err := s.mutations.Since(r.Context(), since, limit)
	if err != nil {
		s.log.Error("fetching mutations", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal", "fetching mutation log")
		return
	}

	Respond(w, http.StatusOK, map[string]any{"mutations": mutations})
}

func (s *Server) handleBypass(w http.ResponseWriter, _ *http.Request) {
	if s.bypass == nil {
		Respond(w, http.StatusOK, map[string]any{"bypass": []any{}})
		return
	}
	Respond(w, http.StatusOK, map[string]any{"bypass": s.bypass.Entries()})
}
