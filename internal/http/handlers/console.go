package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/buoy-console/internal/datasets"
	"github.com/yungbote/buoy-console/internal/formbind"
	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/querycache"
)

const genericLoadError = "Something went wrong while loading this page. Try again in a moment."

type ConsoleHandler struct {
	log          *logger.Logger
	forms        formbind.Generator
	renderWait   time.Duration
	refreshAfter time.Duration
}

type ConsoleOptions struct {
	Forms formbind.Generator
	// RenderWait bounds how long a page waits on pending queries before the
	// loading placeholder is served.
	RenderWait   time.Duration
	RefreshAfter time.Duration
}

func NewConsoleHandler(log *logger.Logger, opts ConsoleOptions) *ConsoleHandler {
	if opts.Forms == nil {
		opts.Forms = formbind.NewSchemaGenerator()
	}
	if opts.RefreshAfter <= 0 {
		opts.RefreshAfter = 2 * time.Second
	}
	return &ConsoleHandler{
		log:          log.With("handler", "ConsoleHandler"),
		forms:        opts.Forms,
		renderWait:   opts.RenderWait,
		refreshAfter: opts.RefreshAfter,
	}
}

// GET /manage/
func (h *ConsoleHandler) ListDatasets(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap := awaitQuery(c.Request.Context(), st.Cache(), st.DatasetsQuery(), h.renderWait)
	if !h.settled(c, "Datasets", snap.Loading(), snap.HasData, snap.Err) {
		return
	}
	c.HTML(http.StatusOK, "list.html", gin.H{
		"Title":    "Datasets",
		"Datasets": snap.Data,
	})
}

// GET /manage/new/
func (h *ConsoleHandler) NewDataset(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap := awaitQuery(c.Request.Context(), st.Cache(), st.PipelinesQuery(), h.renderWait)
	if !h.settled(c, "New dataset", snap.Loading(), snap.HasData, snap.Err) {
		return
	}
	pid, _ := strconv.ParseInt(c.Query("pipeline"), 10, 64)
	h.renderNew(c, http.StatusOK, snap.Data, "", pid, "")
}

// POST /manage/new/
// form: slug, pipeline_id
func (h *ConsoleHandler) CreateDataset(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	slug := strings.TrimSpace(c.PostForm("slug"))
	pid, _ := strconv.ParseInt(strings.TrimSpace(c.PostForm("pipeline_id")), 10, 64)

	created, err := st.CreateDataset(c.Request.Context(), datasets.NewDataset{Slug: slug, PipelineID: pid})
	if err != nil {
		if reportUnauthorized(c, err) {
			return
		}
		status, msg := mutationFailure(err)
		h.log.Warn("create dataset failed", "dataset", slug, "error", err)
		pipelines := querycache.Peek[[]datasets.Pipeline](st.Cache(), datasets.PipelinesKey())
		h.renderNew(c, status, pipelines.Data, slug, pid, msg)
		return
	}
	// The backend may normalize the slug.
	if created != nil && created.Slug != "" {
		slug = created.Slug
	}
	c.Redirect(http.StatusSeeOther, datasetPath(slug))
}

func (h *ConsoleHandler) renderNew(c *gin.Context, status int, pipelines []datasets.Pipeline, slug string, pid int64, errMsg string) {
	c.HTML(status, "new.html", gin.H{
		"Title":      "New dataset",
		"Pipelines":  pipelines,
		"Slug":       slug,
		"PipelineID": pid,
		"Error":      errMsg,
	})
}

// GET /manage/dataset/:slug/
func (h *ConsoleHandler) Dataset(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	slug := c.Param("slug")
	ov := awaitOverview(c.Request.Context(), st, slug, h.renderWait)
	if !h.settledOverview(c, slug, ov) {
		return
	}
	ds := ov.Dataset.Data
	data := gin.H{
		"Title":           ds.Slug,
		"Dataset":         ds,
		"CanEdit":         ds.CanEdit(),
		"PipelinePending": ov.HasPipeline && !ov.Pipeline.HasData && ov.Pipeline.Err == nil,
		"PipelineFailed":  ov.HasPipeline && !ov.Pipeline.HasData && ov.Pipeline.Err != nil,
	}
	if ov.Pipeline.HasData {
		data["Pipeline"] = ov.Pipeline.Data
	}
	c.HTML(http.StatusOK, "dataset.html", data)
}

// GET /manage/dataset/:slug/config/:id/
func (h *ConsoleHandler) EditConfig(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	slug := c.Param("slug")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, datasets.ErrConfigNotFound)
		return
	}

	ov := awaitOverview(c.Request.Context(), st, slug, h.renderWait)
	if !h.settledOverview(c, slug, ov) {
		return
	}
	if !ov.Dataset.Data.CanEdit() {
		h.fail(c, datasets.ErrReadOnly)
		return
	}
	if !ov.HasPipeline {
		h.fail(c, datasets.ErrPipelineUnresolved)
		return
	}
	if !ov.Pipeline.HasData {
		h.fail(c, ov.Pipeline.Err)
		return
	}
	cfg, ok := datasets.LocateConfig(ov.Dataset.Data, id)
	if !ok {
		h.fail(c, datasets.ErrConfigNotFound)
		return
	}
	view := &datasets.ConfigView{Dataset: ov.Dataset.Data, Pipeline: ov.Pipeline.Data, Config: cfg}

	buf := datasets.NewEditBuffer(slug, cfg)
	binding := formbind.NewBinding(h.forms, buf.Value(), buf.Set)
	desc, err := binding.Bind(view.Pipeline.ConfigSchema)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.renderConfig(c, http.StatusOK, view, desc, binding.Value(), nil, "")
}

// POST /manage/dataset/:slug/config/:id/
func (h *ConsoleHandler) UpdateConfig(c *gin.Context) {
	st, err := storeFrom(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	slug := c.Param("slug")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, datasets.ErrConfigNotFound)
		return
	}
	ctx := c.Request.Context()

	view, err := st.ResolveConfig(ctx, slug, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !view.Dataset.CanEdit() {
		h.fail(c, datasets.ErrReadOnly)
		return
	}
	buf := datasets.NewEditBuffer(slug, view.Config)
	binding := formbind.NewBinding(h.forms, buf.Value(), buf.Set)
	desc, err := binding.Bind(view.Pipeline.ConfigSchema)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		h.renderConfig(c, http.StatusBadRequest, view, desc, binding.Value(), nil, "The form could not be read.")
		return
	}
	if err := binding.Apply(c.Request.PostForm); err != nil {
		var fe formbind.FieldErrors
		if errors.As(err, &fe) {
			h.renderConfig(c, http.StatusUnprocessableEntity, view, desc, binding.Value(), fe, "Some fields need attention.")
			return
		}
		h.fail(c, err)
		return
	}

	if err := st.SubmitBuffer(ctx, buf); err != nil {
		if reportUnauthorized(c, err) {
			return
		}
		status, msg := mutationFailure(err)
		h.log.Warn("update config failed", "dataset", slug, "config_id", id, "error", err)
		h.renderConfig(c, status, view, desc, buf.Value(), nil, msg)
		return
	}
	c.Redirect(http.StatusSeeOther, datasetPath(slug))
}

func (h *ConsoleHandler) renderConfig(c *gin.Context, status int, view *datasets.ConfigView, desc *formbind.Descriptor, value map[string]any, fe formbind.FieldErrors, errMsg string) {
	var form bytes.Buffer
	if err := formbind.RenderWithErrors(&form, desc, value, fe); err != nil {
		h.fail(c, err)
		return
	}
	c.HTML(status, "config.html", gin.H{
		"Title":    view.Dataset.Slug,
		"Dataset":  view.Dataset,
		"Pipeline": view.Pipeline,
		"Config":   view.Config,
		"Form":     template.HTML(form.String()),
		"Action":   c.Request.URL.Path,
		"Error":    errMsg,
	})
}

// settled renders the loading placeholder or the failure for a single query
// view. It reports whether the caller should go on rendering data.
func (h *ConsoleHandler) settled(c *gin.Context, title string, loading, hasData bool, err error) bool {
	if err != nil && reportUnauthorized(c, err) {
		return false
	}
	if loading {
		h.loading(c, title)
		return false
	}
	if !hasData {
		if err == nil {
			err = errors.New("no data")
		}
		h.fail(c, err)
		return false
	}
	return true
}

func (h *ConsoleHandler) settledOverview(c *gin.Context, slug string, ov overviewState) bool {
	if ov.Pipeline.Err != nil && reportUnauthorized(c, ov.Pipeline.Err) {
		return false
	}
	if !h.settled(c, slug, ov.Dataset.Loading(), ov.Dataset.HasData, ov.Dataset.Err) {
		return false
	}
	if ov.Loading() {
		h.loading(c, slug)
		return false
	}
	return true
}

func (h *ConsoleHandler) loading(c *gin.Context, title string) {
	secs := int(math.Ceil(h.refreshAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "loading.html", gin.H{
		"Title":        title,
		"RefreshAfter": secs,
	})
}

func (h *ConsoleHandler) fail(c *gin.Context, err error) {
	if reportUnauthorized(c, err) {
		return
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	_ = c.Error(err)

	status, title, msg := http.StatusBadGateway, "Error", genericLoadError
	switch {
	case isNotFound(err):
		status, title, msg = http.StatusNotFound, "Not found", "There is nothing at this address."
	case errors.Is(err, datasets.ErrReadOnly):
		status, title, msg = http.StatusForbidden, "Read-only", "You can view this dataset but not change its configuration."
	case errors.Is(err, datasets.ErrPipelineUnresolved):
		status, title, msg = http.StatusConflict, "No pipeline", "This dataset has no pipeline yet, so its configuration cannot be edited."
	case errors.Is(err, formbind.ErrInvalidSchema):
		status, msg = http.StatusInternalServerError, "The pipeline's configuration schema could not be read."
	case errors.Is(err, errNoSession):
		status = http.StatusInternalServerError
	}
	h.log.Warn("console view failed", "path", c.Request.URL.Path, "status", status, "error", err)
	c.HTML(status, "error.html", gin.H{"Title": title, "Message": msg})
}

// mutationFailure maps a failed create or update to the status and message
// shown above the re-rendered form.
func mutationFailure(err error) (int, string) {
	var ve *gateway.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, ve.Error()
	case errors.Is(err, datasets.ErrInvalidInput):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusBadGateway, "The backend could not save this change. Try again in a moment."
	}
}

func datasetPath(slug string) string {
	return "/manage/dataset/" + url.PathEscape(slug) + "/"
}
