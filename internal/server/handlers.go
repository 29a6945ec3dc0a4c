package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/export"
	"github.com/sells-group/access-cli/internal/model"
	"github.com/sells-group/access-cli/internal/store"
)

type handler struct {
	store store.Store
}

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Runs   []model.Run `json:"runs"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

type scoresResponse struct {
	RunID  string        `json:"run_id"`
	Scores []model.Score `json:"scores"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		zap.L().Error("server: "+msg, zap.Error(err))
	}
	respondJSON(w, status, errorResponse{Error: msg})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit", nil)
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid offset", nil)
		return
	}

	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Name:   r.URL.Query().Get("name"),
		Limit:  limit,
		Offset: offset,
	}
	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	respondJSON(w, http.StatusOK, listResponse{Runs: runs, Limit: limit, Offset: offset})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "run not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// getScores returns a run's scores as JSON, or as a wide table when format
// is csv or tsv.
func (h *handler) getScores(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "run not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	q := r.URL.Query()
	scores, err := h.store.GetScores(r.Context(), id, store.ScoreFilter{
		Category: q.Get("category"),
		UnitID:   q.Get("unit"),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get scores", err)
		return
	}

	switch format := q.Get("format"); format {
	case "", "json":
		if scores == nil {
			scores = []model.Score{}
		}
		respondJSON(w, http.StatusOK, scoresResponse{RunID: id, Scores: scores})
	case string(export.FormatCSV), string(export.FormatTSV):
		tbl, err := export.ScoreTable("scores", scores)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to build score table", err)
			return
		}
		w.Header().Set("Content-Type", "text/"+format+"; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := export.Write(w, tbl, export.Format(format)); err != nil {
			zap.L().Warn("server: write scores", zap.Error(err))
		}
	default:
		respondError(w, http.StatusBadRequest, "unsupported format "+strconv.Quote(format), nil)
	}
}
