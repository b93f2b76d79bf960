// Package datasets is the dataset/config/pipeline model on top of the query
// cache: canonical keys and queries, config resolution, the edit buffer and
// the two mutations (update config, create dataset).
package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/platform/logger"
	"github.com/yungbote/buoy-console/internal/querycache"
)

// Publisher tells other caches which keys and tags a mutation invalidated.
type Publisher interface {
	Publish(ctx context.Context, keys []querycache.Key, tags []string)
}

type Options struct {
	Cache   *querycache.Cache
	Gateway gateway.Doer
	Logger  *logger.Logger
	// Decorate adds per-viewer values (backend credentials) to the context
	// of every backend call, including fetches the cache starts on its own.
	Decorate  func(context.Context) context.Context
	Publisher Publisher
}

type Store struct {
	cache     *querycache.Cache
	gw        gateway.Doer
	log       *logger.Logger
	decorate  func(context.Context) context.Context
	publisher Publisher
}

func NewStore(opts Options) (*Store, error) {
	if opts.Cache == nil {
		return nil, errors.New("datasets: cache required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("datasets: gateway required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	decorate := opts.Decorate
	if decorate == nil {
		decorate = func(ctx context.Context) context.Context { return ctx }
	}
	return &Store{
		cache:     opts.Cache,
		gw:        opts.Gateway,
		log:       log.With("component", "datasets"),
		decorate:  decorate,
		publisher: opts.Publisher,
	}, nil
}

func (s *Store) Cache() *querycache.Cache { return s.cache }

func (s *Store) DatasetsQuery() querycache.Query[[]DatasetCompact] {
	return querycache.Query[[]DatasetCompact]{
		Key:     DatasetsKey(),
		Enabled: true,
		Fetch: func(ctx context.Context) ([]DatasetCompact, error) {
			out, err := gateway.Get[[]DatasetCompact](s.decorate(ctx), s.gw, "datasets.list", "/api/datasets/")
			if err != nil {
				return nil, fmt.Errorf("list datasets: %w", err)
			}
			if out == nil {
				out = []DatasetCompact{}
			}
			return out, nil
		},
	}
}

func (s *Store) DatasetQuery(slug string) querycache.Query[*Dataset] {
	return querycache.Query[*Dataset]{
		Key:     DatasetKey(slug),
		Enabled: slug != "",
		Fetch: func(ctx context.Context) (*Dataset, error) {
			out, err := gateway.Get[*Dataset](s.decorate(ctx), s.gw, "datasets.get", "/api/datasets/"+url.PathEscape(slug)+"/")
			if err != nil {
				return nil, fmt.Errorf("get dataset %s: %w", slug, err)
			}
			if out == nil {
				return nil, &gateway.ParseError{Body: "null", Err: errors.New("empty dataset")}
			}
			return out, nil
		},
	}
}

func (s *Store) PipelinesQuery() querycache.Query[[]Pipeline] {
	return querycache.Query[[]Pipeline]{
		Key:     PipelinesKey(),
		Enabled: true,
		Fetch: func(ctx context.Context) ([]Pipeline, error) {
			out, err := gateway.Get[[]Pipeline](s.decorate(ctx), s.gw, "pipelines.list", "/api/pipelines/")
			if err != nil {
				return nil, fmt.Errorf("list pipelines: %w", err)
			}
			if out == nil {
				out = []Pipeline{}
			}
			return out, nil
		},
	}
}

func (s *Store) PipelineQuery(id int64) querycache.Query[*Pipeline] {
	return querycache.Query[*Pipeline]{
		Key:     PipelineKey(id),
		Enabled: true,
		Fetch: func(ctx context.Context) (*Pipeline, error) {
			out, err := gateway.Get[*Pipeline](s.decorate(ctx), s.gw, "pipelines.get", fmt.Sprintf("/api/pipelines/%d/", id))
			if err != nil {
				return nil, fmt.Errorf("get pipeline %d: %w", id, err)
			}
			if out == nil {
				return nil, &gateway.ParseError{Body: "null", Err: errors.New("empty pipeline")}
			}
			return out, nil
		},
	}
}

func (s *Store) DatasetsForPipelineQuery(pipelineSlug string) querycache.Query[[]Dataset] {
	return querycache.Query[[]Dataset]{
		Key:     DatasetsByPipelineKey(pipelineSlug),
		Enabled: pipelineSlug != "",
		Fetch: func(ctx context.Context) ([]Dataset, error) {
			path := "/api/datasets/by-pipeline/" + url.PathEscape(pipelineSlug) + "/"
			out, err := gateway.Get[[]Dataset](s.decorate(ctx), s.gw, "datasets.by_pipeline", path)
			if err != nil {
				return nil, fmt.Errorf("list datasets for pipeline %s: %w", pipelineSlug, err)
			}
			if out == nil {
				out = []Dataset{}
			}
			return out, nil
		},
	}
}

// DependPipeline binds the dataset query for slug to the pipeline query for
// the dataset's pipeline id. The pipeline query stays disabled until the
// dataset reports one.
func (s *Store) DependPipeline(ctx context.Context, slug string, onChange func(querycache.Snapshot[*Pipeline])) *querycache.Dependent[*Dataset, int64, *Pipeline] {
	return querycache.Depend(ctx, s.cache, s.DatasetQuery(slug), (*Dataset).PipelineID, s.PipelineQuery, onChange)
}

func (s *Store) Datasets(ctx context.Context) ([]DatasetCompact, error) {
	return querycache.Fetch(ctx, s.cache, s.DatasetsQuery())
}

func (s *Store) Dataset(ctx context.Context, slug string) (*Dataset, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: empty slug", ErrInvalidInput)
	}
	return querycache.Fetch(ctx, s.cache, s.DatasetQuery(slug))
}

func (s *Store) Pipelines(ctx context.Context) ([]Pipeline, error) {
	return querycache.Fetch(ctx, s.cache, s.PipelinesQuery())
}

func (s *Store) Pipeline(ctx context.Context, id int64) (*Pipeline, error) {
	return querycache.Fetch(ctx, s.cache, s.PipelineQuery(id))
}

func (s *Store) DatasetsForPipeline(ctx context.Context, pipelineSlug string) ([]Dataset, error) {
	if pipelineSlug == "" {
		return nil, fmt.Errorf("%w: empty pipeline slug", ErrInvalidInput)
	}
	return querycache.Fetch(ctx, s.cache, s.DatasetsForPipelineQuery(pipelineSlug))
}

// Warm loads the dataset and pipeline lists concurrently.
func (s *Store) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Datasets(gctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Pipelines(gctx)
		return err
	})
	return g.Wait()
}

// ConfigView is everything the config editor needs.
type ConfigView struct {
	Dataset  *Dataset
	Pipeline *Pipeline
	Config   DatasetConfig
}

// ResolveConfig resolves the dataset, then its pipeline, then the config by id.
func (s *Store) ResolveConfig(ctx context.Context, slug string, id int64) (*ConfigView, error) {
	ds, err := s.Dataset(ctx, slug)
	if err != nil {
		return nil, err
	}
	pid, ok := ds.PipelineID()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineUnresolved, slug)
	}
	p, err := s.Pipeline(ctx, pid)
	if err != nil {
		return nil, err
	}
	cfg, ok := LocateConfig(ds, id)
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s has no config %d", ErrConfigNotFound, slug, id)
	}
	return &ConfigView{Dataset: ds, Pipeline: p, Config: cfg}, nil
}

// LocateConfig is a linear lookup by identity.
func LocateConfig(ds *Dataset, id int64) (DatasetConfig, bool) {
	return ds.Config(id)
}

// Overview is the dataset page: the dataset and, once known, its pipeline.
type Overview struct {
	Dataset  *Dataset
	Pipeline *Pipeline
}

func (s *Store) Overview(ctx context.Context, slug string) (*Overview, error) {
	ds, err := s.Dataset(ctx, slug)
	if err != nil {
		return nil, err
	}
	out := &Overview{Dataset: ds}
	if pid, ok := ds.PipelineID(); ok {
		p, err := s.Pipeline(ctx, pid)
		if err != nil {
			return nil, err
		}
		out.Pipeline = p
	}
	return out, nil
}

// UpdateConfig submits payload for config id. A failure is returned as is and
// leaves the cache untouched. On success the owning dataset is refetched
// before returning, and the dataset list is invalidated.
func (s *Store) UpdateConfig(ctx context.Context, slug string, id int64, payload map[string]any) error {
	if slug == "" || id <= 0 {
		return fmt.Errorf("%w: slug and config id required", ErrInvalidInput)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body := map[string]any{"config": payload}
	if _, err := gateway.Post[json.RawMessage](s.decorate(ctx), s.gw, "configs.update", fmt.Sprintf("/api/configs/%d/", id), body); err != nil {
		return fmt.Errorf("update config %d: %w", id, err)
	}
	s.log.Info("config updated", "dataset", slug, "config_id", id)

	s.syncDataset(ctx, slug)
	s.cache.Invalidate(DatasetsKey())
	s.publish(ctx, []querycache.Key{DatasetKey(slug), DatasetsKey()}, nil)
	return nil
}

// SubmitBuffer is UpdateConfig for the buffer's config and current value.
func (s *Store) SubmitBuffer(ctx context.Context, b *EditBuffer) error {
	if err := s.UpdateConfig(ctx, b.Slug(), b.ConfigID(), b.Value()); err != nil {
		return err
	}
	b.Commit()
	return nil
}

// CreateDataset posts nd. Nothing is inserted into cached lists; on success
// every datasets listing is invalidated and refetched from the backend.
func (s *Store) CreateDataset(ctx context.Context, nd NewDataset) (*Dataset, error) {
	nd.Slug = strings.TrimSpace(nd.Slug)
	if nd.Slug == "" {
		return nil, fmt.Errorf("%w: slug required", ErrInvalidInput)
	}
	if nd.PipelineID <= 0 {
		return nil, fmt.Errorf("%w: pipeline required", ErrInvalidInput)
	}
	if nd.Config == nil {
		nd.Config = map[string]any{}
	}

	created, err := gateway.Post[*Dataset](s.decorate(ctx), s.gw, "datasets.create", "/api/datasets/", nd)
	if err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", nd.Slug, err)
	}
	slug := nd.Slug
	if created != nil && created.Slug != "" {
		slug = created.Slug
	}
	s.log.Info("dataset created", "dataset", slug, "pipeline_id", nd.PipelineID)

	s.cache.InvalidateTag(TagDatasets)
	s.cache.Invalidate(DatasetKey(slug))
	s.publish(ctx, []querycache.Key{DatasetKey(slug)}, []string{TagDatasets})
	return created, nil
}

func (s *Store) syncDataset(ctx context.Context, slug string) {
	err := s.cache.Refetch(ctx, DatasetKey(slug))
	if errors.Is(err, querycache.ErrNoFetcher) {
		_, err = querycache.Fetch(ctx, s.cache, s.DatasetQuery(slug))
	}
	if err != nil {
		s.log.Warn("dataset refetch after update failed", "dataset", slug, "error", err)
	}
}

func (s *Store) publish(ctx context.Context, keys []querycache.Key, tags []string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, keys, tags)
}
