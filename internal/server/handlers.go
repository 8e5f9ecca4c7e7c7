package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("predict request",
		zap.String("machine", req.MachineID), zap.Strings("horizons", req.Horizons))

	result, err := s.orchestrator.Score(r.Context(), &req)
	if err != nil {
		s.respondScoringError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// respondScoringError maps the scoring core's typed failures to status codes:
// a machine with no data is 404, a schema mismatch is 422 (bad deployment,
// not a bad request), and no loaded model at all is 503.
func (s *Server) respondScoringError(w http.ResponseWriter, err error) {
	var mismatch *models.FeatureMismatchError
	switch {
	case errors.Is(err, models.ErrNoReadings):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNoModelAvailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &mismatch):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("scoring failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := s.retrieval.Ask(r.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("chat failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

type readingsRequest struct {
	Readings []models.Reading `json:"readings"`
}

func (s *Server) handleIngestReadings(w http.ResponseWriter, r *http.Request) {
	var req readingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Readings) == 0 {
		s.respondError(w, http.StatusBadRequest, "readings are required")
		return
	}
	inserted, err := s.storage.InsertReadings(r.Context(), req.Readings)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Fresh data makes cached scores stale immediately.
	machines := make(map[string]bool)
	for _, reading := range req.Readings {
		if !machines[reading.MachineID] {
			machines[reading.MachineID] = true
			s.orchestrator.Invalidate(reading.MachineID)
		}
	}
	s.logger.Info("readings ingested",
		zap.Int("received", len(req.Readings)),
		zap.Int("inserted", inserted),
		zap.Int("machines", len(machines)))
	s.respondJSON(w, http.StatusCreated, map[string]int{
		"received": len(req.Readings),
		"inserted": inserted,
	})
}

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.storage.ListMachines(r.Context())
	if err != nil {
		s.logger.Error("list machines failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if machines == nil {
		machines = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"machines": machines})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.Content == "" {
		s.respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if err := s.indexer.IndexDocument(r.Context(), &input); err != nil {
		s.logger.Error("indexing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": input.ID, "status": "indexed"})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.storage.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	readings, err := s.storage.CountReadings(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	machines, err := s.storage.ListMachines(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	docs, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunks, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]interface{}{
		"readings":          readings,
		"machines":          len(machines),
		"documents":         docs,
		"chunks":            chunks,
		"vector_index_size": s.retrieval.VectorIndexSize(),
		"loaded_horizons":   s.orchestrator.Horizons(),
		"config": map[string]interface{}{
			"horizons":             s.config.Scoring.Horizons,
			"channels":             s.config.Features.Channels,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"chunk_size":           s.config.Retrieval.ChunkSize,
			"similarity_floor":     s.config.Retrieval.SimilarityFloor,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
		s.config.Storage.VectorIndexPath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
