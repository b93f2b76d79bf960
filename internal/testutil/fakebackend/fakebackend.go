// Package fakebackend is an in-memory stand-in for the dataset backend REST
// API, served over httptest. It routes only the trailing-slash form of each
// path, like the real backend.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const Prefix = "/backend"

type Pipeline struct {
	ID           int64          `json:"id"`
	Slug         string         `json:"slug"`
	Name         string         `json:"name"`
	ConfigSchema map[string]any `json:"config_schema"`
	Description  string         `json:"description"`
	Active       bool           `json:"active"`
	Created      time.Time      `json:"created"`
	Edited       time.Time      `json:"edited"`
}

type Config struct {
	ID      int64          `json:"id"`
	Config  map[string]any `json:"config"`
	State   string         `json:"state"`
	Created time.Time      `json:"created"`
	Edited  time.Time      `json:"edited"`
}

type Dataset struct {
	ID             int64     `json:"id"`
	Slug           string    `json:"slug"`
	Pipeline       int64     `json:"-"`
	Configs        []int64   `json:"-"`
	State          string    `json:"state"`
	Created        time.Time `json:"created"`
	Edited         time.Time `json:"edited"`
	UserCanEdit    bool      `json:"user_can_edit"`
	UserCanPublish bool      `json:"user_can_publish"`
}

type Backend struct {
	t   testing.TB
	srv *httptest.Server

	mu        sync.Mutex
	pipelines []Pipeline
	datasets  []*Dataset
	configs   map[int64]*Config
	nextID    int64
	now       time.Time

	unauthorized bool
	legacyRunner bool
	seedConfig   bool
	lowerSlugs   bool
	apiKey       string
	failures     map[string]int
	holds        map[string]chan struct{}

	calls       map[string]int
	inflight    map[string]int
	maxInflight map[string]int
	requests    []Recorded
}

// Recorded is one request as the backend saw it.
type Recorded struct {
	Method  string
	Path    string
	Body    map[string]any
	Cookies map[string]string
	Header  http.Header
}

var slugRe = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		t:           t,
		configs:     make(map[int64]*Config),
		nextID:      100,
		now:         time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		failures:    make(map[string]int),
		holds:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
		inflight:    make(map[string]int),
		maxInflight: make(map[string]int),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(func() {
		b.mu.Lock()
		for k, ch := range b.holds {
			close(ch)
			delete(b.holds, k)
		}
		b.mu.Unlock()
		b.srv.Close()
	})
	return b
}

func (b *Backend) URL() string { return b.srv.URL }

func (b *Backend) AddPipeline(p Pipeline) Pipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == 0 {
		b.nextID++
		p.ID = b.nextID
	}
	if p.Created.IsZero() {
		p.Created, p.Edited = b.now, b.now
	}
	b.pipelines = append(b.pipelines, p)
	return p
}

// AddDataset stores d with one config per payload, in order.
func (b *Backend) AddDataset(d Dataset, payloads ...map[string]any) Dataset {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.ID == 0 {
		b.nextID++
		d.ID = b.nextID
	}
	if d.Created.IsZero() {
		d.Created, d.Edited = b.now, b.now
	}
	if d.State == "" {
		d.State = "Active"
	}
	for _, p := range payloads {
		d.Configs = append(d.Configs, b.newConfigLocked(p, "Draft").ID)
	}
	cp := d
	b.datasets = append(b.datasets, &cp)
	return cp
}

// AddConfig appends a config with a fixed id to an existing dataset.
func (b *Backend) AddConfig(slug string, c Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.datasetLocked(slug)
	if d == nil {
		b.t.Fatalf("fakebackend: unknown dataset %q", slug)
		return
	}
	if c.State == "" {
		c.State = "Draft"
	}
	if c.Created.IsZero() {
		c.Created, c.Edited = b.now, b.now
	}
	if c.Config == nil {
		c.Config = map[string]any{}
	}
	b.configs[c.ID] = &c
	d.Configs = append(d.Configs, c.ID)
}

func (b *Backend) SetUnauthorized(v bool) { b.mu.Lock(); b.unauthorized = v; b.mu.Unlock() }

// SetLegacyRunner makes dataset payloads carry the relation as "runner".
func (b *Backend) SetLegacyRunner(v bool) { b.mu.Lock(); b.legacyRunner = v; b.mu.Unlock() }

// SetSeedConfig makes created datasets start with one config holding the
// posted payload instead of none.
func (b *Backend) SetSeedConfig(v bool) { b.mu.Lock(); b.seedConfig = v; b.mu.Unlock() }

// SetLowerSlugs makes create store the slug lowercased, the way a backend
// that normalizes slugs answers.
func (b *Backend) SetLowerSlugs(v bool) { b.mu.Lock(); b.lowerSlugs = v; b.mu.Unlock() }

// RequireAPIKey makes the by-pipeline and pipeline routes demand X-API-KEY.
func (b *Backend) RequireAPIKey(key string) { b.mu.Lock(); b.apiKey = key; b.mu.Unlock() }

// Fail answers the next n requests to "METHOD /path/" with a 500.
func (b *Backend) Fail(route string, n int) {
	b.mu.Lock()
	b.failures[route] = n
	b.mu.Unlock()
}

// Hold blocks requests to route until the returned func is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			owned := b.holds[route] == ch
			if owned {
				delete(b.holds, route)
			}
			b.mu.Unlock()
			if owned {
				close(ch)
			}
		})
	}
}

func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *Backend) MaxInflight(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInflight[route]
}

func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.requests...)
}

func (b *Backend) ConfigPayload(id int64) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.configs[id]
	if !ok {
		return nil, false
	}
	return c.Config, true
}

func (b *Backend) DatasetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.datasets)
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path

	var body map[string]any
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	b.mu.Lock()
	b.calls[route]++
	b.inflight[route]++
	if b.inflight[route] > b.maxInflight[route] {
		b.maxInflight[route] = b.inflight[route]
	}
	b.requests = append(b.requests, Recorded{Method: r.Method, Path: r.URL.Path, Body: body, Cookies: cookies, Header: r.Header.Clone()})
	hold := b.holds[route]
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inflight[route]--
		b.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unauthorized {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
		return
	}
	if n := b.failures[route]; n > 0 {
		b.failures[route] = n - 1
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "internal error"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, Prefix)
	if !strings.HasSuffix(path, "/") {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" {
		http.NotFound(w, r)
		return
	}

	switch {
	case parts[1] == "datasets" && len(parts) == 2 && r.Method == http.MethodGet:
		b.listDatasetsLocked(w)
	case parts[1] == "datasets" && len(parts) == 2 && r.Method == http.MethodPost:
		b.createDatasetLocked(w, body)
	case parts[1] == "datasets" && len(parts) == 4 && parts[2] == "by-pipeline" && r.Method == http.MethodGet:
		if !b.apiKeyOKLocked(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
			return
		}
		b.byPipelineLocked(w, parts[3])
	case parts[1] == "datasets" && len(parts) == 3 && r.Method == http.MethodGet:
		b.getDatasetLocked(w, parts[2])
	case parts[1] == "pipelines" && len(parts) == 2 && r.Method == http.MethodGet:
		if !b.apiKeyOKLocked(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
			return
		}
		ps := append([]Pipeline{}, b.pipelines...)
		writeJSON(w, http.StatusOK, ps)
	case parts[1] == "pipelines" && len(parts) == 3 && r.Method == http.MethodGet:
		if !b.apiKeyOKLocked(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
			return
		}
		b.getPipelineLocked(w, parts[2])
	case parts[1] == "configs" && len(parts) == 3 && r.Method == http.MethodPost:
		b.updateConfigLocked(w, parts[2], body)
	default:
		http.NotFound(w, r)
	}
}

func (b *Backend) apiKeyOKLocked(r *http.Request) bool {
	return b.apiKey == "" || r.Header.Get("X-API-KEY") == b.apiKey
}

func (b *Backend) listDatasetsLocked(w http.ResponseWriter) {
	out := make([]map[string]any, 0, len(b.datasets))
	for _, d := range b.datasets {
		out = append(out, map[string]any{
			"slug":             d.Slug,
			"state":            d.State,
			"created":          d.Created,
			"edited":           d.Edited,
			"user_can_edit":    d.UserCanEdit,
			"user_can_publish": d.UserCanPublish,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getDatasetLocked(w http.ResponseWriter, slug string) {
	d := b.datasetLocked(slug)
	if d == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, b.fullLocked(d))
}

func (b *Backend) byPipelineLocked(w http.ResponseWriter, pipelineSlug string) {
	var id int64 = -1
	for _, p := range b.pipelines {
		if p.Slug == pipelineSlug {
			id = p.ID
		}
	}
	out := []map[string]any{}
	for _, d := range b.datasets {
		if d.Pipeline == id {
			out = append(out, b.fullLocked(d))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) fullLocked(d *Dataset) map[string]any {
	configs := make([]*Config, 0, len(d.Configs))
	for _, id := range d.Configs {
		if c, ok := b.configs[id]; ok {
			configs = append(configs, c)
		}
	}
	rel := "pipeline"
	if b.legacyRunner {
		rel = "runner"
	}
	var pipeline any
	if d.Pipeline != 0 {
		pipeline = d.Pipeline
	}
	return map[string]any{
		"id":               d.ID,
		"slug":             d.Slug,
		rel:                pipeline,
		"configs":          configs,
		"state":            d.State,
		"created":          d.Created,
		"edited":           d.Edited,
		"user_can_edit":    d.UserCanEdit,
		"user_can_publish": d.UserCanPublish,
	}
}

func (b *Backend) getPipelineLocked(w http.ResponseWriter, raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid id"})
		return
	}
	for _, p := range b.pipelines {
		if p.ID == id {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
}

func (b *Backend) createDatasetLocked(w http.ResponseWriter, body map[string]any) {
	slug, _ := body["slug"].(string)
	if !slugRe.MatchString(slug) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "payload", "slug"}, "msg": "Enter a valid slug"}},
		})
		return
	}
	if b.lowerSlugs {
		slug = strings.ToLower(slug)
	}
	if b.datasetLocked(slug) != nil {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": fmt.Sprintf("dataset %q already exists", slug)})
		return
	}
	pid, ok := body["pipeline_id"].(float64)
	found := false
	for _, p := range b.pipelines {
		if ok && p.ID == int64(pid) {
			found = true
		}
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}
	cfg, _ := body["config"].(map[string]any)

	b.nextID++
	d := &Dataset{
		ID:             b.nextID,
		Slug:           slug,
		Pipeline:       int64(pid),
		State:          "Active",
		Created:        b.now,
		Edited:         b.now,
		UserCanEdit:    true,
		UserCanPublish: true,
	}
	if b.seedConfig {
		d.Configs = append(d.Configs, b.newConfigLocked(cfg, "Draft").ID)
	}
	b.datasets = append(b.datasets, d)
	writeJSON(w, http.StatusOK, b.fullLocked(d))
}

func (b *Backend) updateConfigLocked(w http.ResponseWriter, raw string, body map[string]any) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid id"})
		return
	}
	c, ok := b.configs[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}
	payload, ok := body["config"].(map[string]any)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "config must be an object"})
		return
	}
	c.Config = payload
	c.Edited = b.now.Add(time.Minute)
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) newConfigLocked(payload map[string]any, state string) *Config {
	if payload == nil {
		payload = map[string]any{}
	}
	b.nextID++
	c := &Config{ID: b.nextID, Config: payload, State: state, Created: b.now, Edited: b.now}
	b.configs[c.ID] = c
	return c
}

func (b *Backend) datasetLocked(slug string) *Dataset {
	for _, d := range b.datasets {
		if d.Slug == slug {
			return d
		}
	}
	return nil
}

// Routes lists every route that received traffic, sorted.
func (b *Backend) Routes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.calls))
	for k := range b.calls {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
