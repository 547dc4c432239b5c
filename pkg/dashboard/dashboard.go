// Package dashboard exposes a read-only JSON view over one job's
// range-analytic queries (gaps, islands, status counts) plus a cached
// chain-tip lookup, routed with chi the way the original system's admin
// read API was routed, with CORS enabled for a browser-hosted frontend.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/blockset-corp/chainaudit/pkg/chainmodel"
	"github.com/blockset-corp/chainaudit/pkg/datastorage/repository"
)

// BlockRangeReader is the subset of BlockRepository the dashboard reads
// through; kept narrow so handlers are testable without a real database.
type BlockRangeReader interface {
	Gaps(ctx context.Context, jobID uuid.UUID, start, end int64) ([]repository.GapRange, error)
	Islands(ctx context.Context, jobID uuid.UUID, start, end int64, statuses []chainmodel.Status) ([]repository.Island, error)
	StatusCountsInRanges(ctx context.Context, jobID uuid.UUID, start, end, step int64) ([]repository.StatusCount, error)
}

// TipReader resolves the current chain tip for a blockchain, cached for
// the duration pkg/chaincache configures it with. The dashboard is the
// only caller; the scheduler always asks the canonical adapter directly.
type TipReader interface {
	Tip(ctx context.Context, blockchainID string) (int64, error)
}

// Server hosts the dashboard's read-only JSON API on its own port,
// separate from the metrics server.
type Server struct {
	server *http.Server
	log    logr.Logger
}

// NewServer builds a dashboard Server bound to ":port", backed by blocks
// for its range queries and tips for the chain-tip endpoint.
func NewServer(port string, blocks BlockRangeReader, tips TipReader, logger logr.Logger) *Server {
	h := &handler{blocks: blocks, tips: tips, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/gaps", h.getGaps)
		r.Get("/islands", h.getIslands)
		r.Get("/status-counts", h.getStatusCounts)
	})
	r.Get("/chains/{blockchainID}/tip", h.getTip)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger,
	}
}

// StartAsync starts the HTTP listener in a background goroutine. Bind
// failures are logged, not returned, since the caller has already moved on.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error(err, "dashboard server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the server, honoring ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type handler struct {
	blocks BlockRangeReader
	tips   TipReader
	log    logr.Logger
}

// rangeParams parses the {jobID} path parameter and the start/end query
// parameters shared by the /jobs/{jobID} routes.
func (h *handler) rangeParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, int64, int64, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, 0, 0, false
	}

	start, err := parseInt64Param(r, "start", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start parameter")
		return uuid.Nil, 0, 0, false
	}
	end, err := parseInt64Param(r, "end", chainmodel.MaxEndHeight)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end parameter")
		return uuid.Nil, 0, 0, false
	}
	return jobID, start, end, true
}

func parseInt64Param(r *http.Request, name string, fallback int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// getGaps serves GET /jobs/{jobID}/gaps.
func (h *handler) getGaps(w http.ResponseWriter, r *http.Request) {
	jobID, start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	gaps, err := h.blocks.Gaps(r.Context(), jobID, start, end)
	if err != nil {
		h.log.Error(err, "failed to compute gaps", "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to compute gaps")
		return
	}
	writeJSON(w, http.StatusOK, gaps)
}

// getIslands serves GET /jobs/{jobID}/islands?status=gd&status=bd.
func (h *handler) getIslands(w http.ResponseWriter, r *http.Request) {
	jobID, start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	statuses := parseStatuses(r.URL.Query()["status"])
	islands, err := h.blocks.Islands(r.Context(), jobID, start, end, statuses)
	if err != nil {
		h.log.Error(err, "failed to compute islands", "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to compute islands")
		return
	}
	writeJSON(w, http.StatusOK, islands)
}

// getStatusCounts serves GET /jobs/{jobID}/status-counts?step=1000.
func (h *handler) getStatusCounts(w http.ResponseWriter, r *http.Request) {
	jobID, start, end, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	step, err := parseInt64Param(r, "step", 1000)
	if err != nil || step <= 0 {
		writeError(w, http.StatusBadRequest, "invalid step parameter")
		return
	}

	counts, err := h.blocks.StatusCountsInRanges(r.Context(), jobID, start, end, step)
	if err != nil {
		h.log.Error(err, "failed to compute status counts", "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to compute status counts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// getTip serves GET /chains/{blockchainID}/tip.
func (h *handler) getTip(w http.ResponseWriter, r *http.Request) {
	blockchainID := chi.URLParam(r, "blockchainID")
	if blockchainID == "" {
		writeError(w, http.StatusBadRequest, "invalid blockchain id")
		return
	}

	height, err := h.tips.Tip(r.Context(), blockchainID)
	if err != nil {
		h.log.Error(err, "failed to resolve chain tip", "blockchain_id", blockchainID)
		writeError(w, http.StatusInternalServerError, "failed to resolve chain tip")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"height": height})
}

// parseStatuses defaults to every terminal and pending status when the
// caller supplies none.
func parseStatuses(raw []string) []chainmodel.Status {
	if len(raw) == 0 {
		return []chainmodel.Status{
			chainmodel.StatusPending,
			chainmodel.StatusGood,
			chainmodel.StatusBad,
			chainmodel.StatusFail,
		}
	}
	statuses := make([]chainmodel.Status, len(raw))
	for i, s := range raw {
		statuses[i] = chainmodel.Status(s)
	}
	return statuses
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
