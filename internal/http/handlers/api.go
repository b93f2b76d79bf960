package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/http/response"
	"github.com/yungbote/buoy-console/internal/platform/logger"
)

// APIHandler is the JSON mirror of the console pages. Calls block on the
// session cache like any other reader; there is no placeholder state.
type APIHandler struct {
	log *logger.Logger
}

func NewAPIHandler(log *logger.Logger) *APIHandler {
	return &APIHandler{log: log.With("handler", "APIHandler")}
}

// GET /manage/api/datasets
func (h *APIHandler) ListDatasets(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := st.Datasets(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []datasets.DatasetCompact{}
	}
	response.RespondOK(c, gin.H{"datasets": list})
}

// GET /manage/api/datasets/:slug
func (h *APIHandler) GetDataset(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ov, err := st.Overview(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"dataset":     ov.Dataset,
		"pipeline":    ov.Pipeline,
		"can_edit":    ov.Dataset.CanEdit(),
		"can_publish": ov.Dataset.CanPublish(),
	})
}

// GET /manage/api/pipelines
func (h *APIHandler) ListPipelines(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := st.Pipelines(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []datasets.Pipeline{}
	}
	response.RespondOK(c, gin.H{"pipelines": list})
}

// GET /manage/api/pipelines/:slug/datasets
func (h *APIHandler) PipelineDatasets(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	list, err := st.DatasetsForPipeline(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []datasets.Dataset{}
	}
	response.RespondOK(c, gin.H{"datasets": list})
}

type cacheEntry struct {
	Key       string     `json:"key"`
	Tag       string     `json:"tag"`
	Status    string     `json:"status"`
	HasValue  bool       `json:"has_value"`
	Fetching  bool       `json:"fetching"`
	Stale     bool       `json:"stale"`
	Version   uint64     `json:"version"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// GET /manage/api/cache
// Debug view of the caller's own session cache.
func (h *APIHandler) CacheEntries(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries := st.Cache().Entries()
	out := make([]cacheEntry, 0, len(entries))
	for _, e := range entries {
		ce := cacheEntry{
			Key:      e.Key.String(),
			Tag:      e.Key.Tag(),
			Status:   e.Status.String(),
			HasValue: e.HasValue,
			Fetching: e.Fetching,
			Stale:    e.Stale,
			Version:  e.Version,
		}
		if !e.UpdatedAt.IsZero() {
			t := e.UpdatedAt
			ce.UpdatedAt = &t
		}
		if e.Err != nil {
			ce.Error = e.Err.Error()
		}
		out = append(out, ce)
	}
	response.RespondOK(c, gin.H{"entries": out})
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	if reportUnauthorized(c, err) {
		return
	}
	_ = c.Error(err)
	switch {
	case errors.Is(err, datasets.ErrInvalidInput):
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case isNotFound(err):
		response.RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errNoSession):
		response.RespondError(c, http.StatusInternalServerError, "session_unavailable", err)
	default:
		h.log.Warn("api request failed", "path", c.Request.URL.Path, "error", err)
		response.RespondError(c, http.StatusBadGateway, "backend_error", err)
	}
}
